package model

// CaptureResult is returned for every single device capture, successful or not.
type CaptureResult struct {
	Success   bool      `json:"success"`
	Hostname  string    `json:"hostname"`
	IP        string    `json:"ip"`
	Message   string    `json:"message"`
	Filename  string    `json:"filename,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	ErrorKind ErrorKind `json:"error_type,omitempty"`
}

// BatchItem is the per device entry of a BatchResult.
type BatchItem struct {
	Success  bool   `json:"success"`
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// BatchResult aggregates a capture over the whole registry.
type BatchResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Count   int         `json:"count"`
	Total   int         `json:"total"`
	Results []BatchItem `json:"results"`
}
