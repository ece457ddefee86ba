package discogs

import (
	"strings"
	"time"

	"github.com/dkoenig/discosync/internal/model"
)

// ToCollectionItem flattens a wire release into the local item shape. Only
// catalog-owned fields are populated; locally-owned fields keep their zero
// values ("never played") so a first-sight insert carries the right defaults.
func ToCollectionItem(r Release) *model.CollectionItem {
	info := r.BasicInformation

	item := &model.CollectionItem{
		ID:         r.ID,
		InstanceID: r.InstanceID,
		Title:      info.Title,
		Year:       info.Year,
		MasterID:   info.MasterID,
		Thumb:      info.Thumb,
		CoverImage: info.CoverImage,
		Genres:     info.Genres,
		Styles:     info.Styles,
		Notes:      joinNotes(r.Notes),
		Rating:     r.Rating, // 0 = unrated
	}

	for _, a := range info.Artists {
		item.Artists = append(item.Artists, a.Name)
	}
	for _, f := range info.Formats {
		item.Formats = append(item.Formats, formatDisplay(f))
	}
	for _, l := range info.Labels {
		item.Labels = append(item.Labels, l.Name)
	}

	if r.DateAdded != "" {
		if t, err := time.Parse(time.RFC3339, r.DateAdded); err == nil {
			item.DateAdded = t.UTC()
		}
	}

	return item
}

// formatDisplay renders one format as a single display string, joining its
// description list: `Vinyl (LP, Album, Reissue)`.
func formatDisplay(f Format) string {
	if len(f.Descriptions) == 0 {
		return f.Name
	}
	return f.Name + " (" + strings.Join(f.Descriptions, ", ") + ")"
}

// joinNotes collapses the per-field note values into one free-text block.
func joinNotes(notes []NoteField) string {
	var values []string
	for _, n := range notes {
		if n.Value != "" {
			values = append(values, n.Value)
		}
	}
	return strings.Join(values, "\n")
}
