// Package attributes maps the human readable face attribute names accepted by
// callers onto the identifiers the face service expects in returnFaceAttributes.
package attributes

// ID is a service-defined face attribute identifier.
type ID string

const (
	Age                   ID = "age"
	Gender                ID = "gender"
	Emotion               ID = "emotion"
	Glasses               ID = "glasses"
	Hair                  ID = "hair"
	Makeup                ID = "makeup"
	FacialHair            ID = "facialHair"
	HeadPose              ID = "headPose"
	Occlusion             ID = "occlusion"
	Accessories           ID = "accessories"
	Blur                  ID = "blur"
	Exposure              ID = "exposure"
	Noise                 ID = "noise"
	QualityForRecognition ID = "qualityForRecognition"
	Smile                 ID = "smile"
)

// catalog is ordered so Names is stable.
var catalog = []struct {
	name string
	id   ID
}{
	{"age", Age},
	{"gender", Gender},
	{"emotion", Emotion},
	{"glasses", Glasses},
	{"hair", Hair},
	{"makeup", Makeup},
	{"facialHair", FacialHair},
	{"headPose", HeadPose},
	{"occlusion", Occlusion},
	{"accessories", Accessories},
	{"blur", Blur},
	{"exposure", Exposure},
	{"noise", Noise},
	{"qualityForRecognition", QualityForRecognition},
	{"smile", Smile},
}

var byName = func() map[string]ID {
	m := make(map[string]ID, len(catalog))
	for _, entry := range catalog {
		m[entry.name] = entry.id
	}
	return m
}()

// Translate converts attribute names into service identifiers. Names outside
// the catalog are dropped rather than rejected, since not every service tier
// recognises every attribute. Output keeps caller order, each ID once.
func Translate(names []string) []ID {
	if len(names) == 0 {
		return []ID{}
	}
	out := make([]ID, 0, len(names))
	seen := make(map[ID]struct{}, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Known reports whether name is part of the catalog.
func Known(name string) bool {
	_, ok := byName[name]
	return ok
}

// Names lists every attribute name in catalog order.
func Names() []string {
	out := make([]string, len(catalog))
	for i, entry := range catalog {
		out[i] = entry.name
	}
	return out
}

// Strings renders ids for query parameters.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
