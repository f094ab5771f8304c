package model

// Payload is stored alongside every vector. Field names are the wire names
// already present in existing collections.
type Payload struct {
	Text      string `json:"text"`
	File      string `json:"file"`
	Idx       int    `json:"idx"`
	ChunkSize int    `json:"chunk_size"`
}

// Chunk is one normalised window of a source document.
type Chunk struct {
	ID         string
	SourceFile string
	Ordinal    int
	Text       string
}

func (c Chunk) Length() int {
	return len([]rune(c.Text))
}

func (c Chunk) Payload() Payload {
	return Payload{
		Text:      c.Text,
		File:      c.SourceFile,
		Idx:       c.Ordinal,
		ChunkSize: c.Length(),
	}
}

type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

type SearchHit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// CollectionInfo mirrors what the vector database reports about a collection.
type CollectionInfo struct {
	Name         string `json:"name"`
	Dimension    int    `json:"dimension"`
	Distance     string `json:"distance"`
	VectorsCount int64  `json:"vectors_count"`
	PointsCount  int64  `json:"points_count"`
	Status       string `json:"status"`
}
