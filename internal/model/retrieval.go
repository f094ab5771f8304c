package model

type Reference struct {
	File      string  `json:"file"`
	Idx       int     `json:"idx"`
	Score     float64 `json:"score"`
	ChunkSize int     `json:"chunk_size"`
}

type SearchMetadata struct {
	TotalResults int     `json:"total_results"`
	AvgScore     float64 `json:"avg_score"`
	TopScore     float64 `json:"top_score"`
}

type RetrievalResult struct {
	Answer         string         `json:"answer"`
	Refs           []Reference    `json:"refs"`
	SearchMetadata SearchMetadata `json:"search_metadata"`
}
