package discogs

// Wire types for the two Discogs endpoints the engines consume. Only the
// fields the pipeline reads are declared; everything else in the responses is
// ignored during decoding.

// CollectionPage is the response of
// GET /users/{username}/collection/folders/0/releases.
type CollectionPage struct {
	Pagination Pagination `json:"pagination"`
	Releases   []Release  `json:"releases"`
}

// Pagination describes the server-side paging state of a collection response.
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// Release is one entry of a collection page.
type Release struct {
	ID               int64            `json:"id"`
	InstanceID       int64            `json:"instance_id"`
	DateAdded        string           `json:"date_added"`
	Rating           int              `json:"rating"`
	Notes            []NoteField      `json:"notes,omitempty"`
	BasicInformation BasicInformation `json:"basic_information"`
}

// NoteField is a single free-text note attached to a collection release.
type NoteField struct {
	FieldID int    `json:"field_id"`
	Value   string `json:"value"`
}

// BasicInformation carries the descriptive catalog data nested inside a
// collection release.
type BasicInformation struct {
	Title      string   `json:"title"`
	Year       int      `json:"year"`
	MasterID   int64    `json:"master_id"`
	Artists    []Artist `json:"artists"`
	Formats    []Format `json:"formats"`
	Labels     []Label  `json:"labels"`
	Genres     []string `json:"genres"`
	Styles     []string `json:"styles"`
	Thumb      string   `json:"thumb"`
	CoverImage string   `json:"cover_image"`
}

// Artist is one credited artist on a release.
type Artist struct {
	Name string `json:"name"`
}

// Format describes one physical format of a release, e.g. a vinyl LP with
// its pressing descriptions.
type Format struct {
	Name         string   `json:"name"`
	Qty          string   `json:"qty"`
	Descriptions []string `json:"descriptions,omitempty"`
}

// Label is one record label credited on a release.
type Label struct {
	Name  string `json:"name"`
	CatNo string `json:"catno"`
}

// Master is the response of GET /masters/{masterId}. Only the year is
// consumed by enrichment.
type Master struct {
	ID    int64  `json:"id"`
	Year  int    `json:"year"`
	Title string `json:"title"`
}
