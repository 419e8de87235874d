package domain

// Copy is one physical lendable unit of a book.
type Copy struct {
	ID        int32  `json:"id"`
	BookID    int32  `json:"book_id"`
	Code      string `json:"code"`
	Available bool   `json:"available"`
}

type Book struct {
	ID     int32  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
}
