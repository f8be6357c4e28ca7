package resolve

import "photoMap/photo"

// Merge fills the gaps of the first source with the later ones. For every field the first
// non-empty value wins; Coords move as a pair. Extra is the union of all sources and a key is
// never overwritten once set. Inputs are not modified.
func Merge(sources ...photo.Metadata) photo.Metadata {
	var out photo.Metadata
	for _, s := range sources {
		if out.Coords == nil && s.Coords != nil {
			p := *s.Coords
			out.Coords = &p
		}
		if out.DateTime == "" {
			out.DateTime = s.DateTime
		}
		if out.Make == "" {
			out.Make = s.Make
		}
		if out.Model == "" {
			out.Model = s.Model
		}
		for k, v := range s.Extra {
			if out.Extra == nil {
				out.Extra = make(map[string]string, len(s.Extra))
			}
			if _, ok := out.Extra[k]; !ok {
				out.Extra[k] = v
			}
		}
	}
	return out
}
