package anchor

// ContextWindow is the number of characters captured on each side of a
// selection for fallback resolution.
const ContextWindow = 50

// SerializedRange is the portable, storable description of an anchor's
// location inside a container. Text is authoritative for fallback
// re-resolution; the offsets are advisory and may go stale as the document
// changes.
type SerializedRange struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	StartOffset       int    `json:"start_offset"`
	EndOffset         int    `json:"end_offset"`
	BeforeContext     string `json:"before_context"`
	AfterContext      string `json:"after_context"`
	ContainerSelector string `json:"container_selector"`
}
