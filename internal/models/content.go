package models

// Material is study text extracted from an upload or a video.
type Material struct {
	Source    string `json:"source"` // "file" | "youtube"
	Title     string `json:"title"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

type YouTubeRequest struct {
	URL string `json:"url"`
}
