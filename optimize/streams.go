package optimize

import (
	"context"

	"github.com/wudi/pdfstudio/filters"
	"github.com/wudi/pdfstudio/ir/raw"
)

// combineDuplicateStreams keeps the lowest-numbered copy of every set of
// identical streams and points all references at it. Merging can make
// further streams identical, so it repeats until nothing changes.
func combineDuplicateStreams(ctx context.Context, doc *raw.Document) (int, error) {
	combined := 0
	for {
		if err := ctx.Err(); err != nil {
			return combined, err
		}
		seen := make(map[string]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)
		for _, ref := range doc.SortedRefs() {
			stream, ok := doc.Objects[ref].(*raw.StreamObj)
			if !ok {
				continue
			}
			h := hashObject(stream)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
			} else {
				seen[h] = ref
			}
		}
		if len(replacements) == 0 {
			return combined, nil
		}
		applyReplacements(doc, replacements)
		for dup := range replacements {
			delete(doc.Objects, dup)
		}
		combined += len(replacements)
	}
}

func applyReplacements(doc *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	for _, obj := range doc.Objects {
		replaceRefsInObject(obj, replacements)
	}
	if doc.Trailer != nil {
		replaceRefsInObject(doc.Trailer, replacements)
	}
}

func replaceRefsInObject(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) {
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.R]; found {
					t.Items[i] = raw.RefObj{R: newRef}
				}
			} else {
				replaceRefsInObject(val, replacements)
			}
		}
	case *raw.DictObj:
		for key, val := range t.KV {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.R]; found {
					t.KV[key] = raw.RefObj{R: newRef}
				}
			} else {
				replaceRefsInObject(val, replacements)
			}
		}
	case *raw.StreamObj:
		replaceRefsInObject(t.Dict, replacements)
	}
}

// compressStreams Flate-encodes streams that carry no filter and re-encodes
// streams whose filters this package can decode when Flate is smaller.
// Image codecs are left alone.
func compressStreams(ctx context.Context, doc *raw.Document) (int, error) {
	pipeline := filters.Default(filters.Limits{})
	compressed := 0
	for _, ref := range doc.SortedRefs() {
		if err := ctx.Err(); err != nil {
			return compressed, err
		}
		stream, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok || len(stream.Data) == 0 {
			continue
		}
		names, params := filters.ExtractFilters(stream.Dict)
		if len(names) == 1 && names[0] == "FlateDecode" {
			continue
		}
		decoded, err := pipeline.Decode(ctx, stream.Data, names, params)
		if err != nil {
			// DCT, JPX, CCITT and friends stay as they are.
			continue
		}
		data, err := filters.EncodeFlate(decoded)
		if err != nil {
			return compressed, err
		}
		if len(names) > 0 && len(data) >= len(stream.Data) {
			continue
		}
		stream.Data = data
		stream.Dict.Put("Filter", raw.NameLiteral("FlateDecode"))
		stream.Dict.Put("Length", raw.NumberInt(int64(len(data))))
		stream.Dict.Delete("DecodeParms")
		compressed++
	}
	return compressed, nil
}
