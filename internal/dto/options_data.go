package dto

// OptionsData lists the choices the sidebar offers.
type OptionsData struct {
	Tasks             []string `json:"tasks"`
	Sources           []string `json:"sources"`
	ImageExtensions   []string `json:"imageExtensions"`
	VideoExtensions   []string `json:"videoExtensions"`
	DefaultConfidence float64  `json:"defaultConfidence"`
	RTSPExample       string   `json:"rtspExample"`
}
