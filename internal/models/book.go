package models

import (
	"strings"
	"time"
)

// Book reprezentuje książkę w katalogu biblioteki
type Book struct {
	ID              string    `json:"id" firestore:"id"`
	Title           string    `json:"title" firestore:"title"`
	Author          string    `json:"author,omitempty" firestore:"author"`
	ISBN            string    `json:"isbn,omitempty" firestore:"isbn"`
	Category        string    `json:"category,omitempty" firestore:"category"`
	PublicationYear int       `json:"publication_year,omitempty" firestore:"publication_year"`
	Description     string    `json:"description,omitempty" firestore:"description"`
	IsAvailable     bool      `json:"is_available" firestore:"is_available"`
	CreatedAt       time.Time `json:"created_at" firestore:"created_at"`
}

// NewBook tworzy książkę dostępną do wypożyczenia
func NewBook(title string) *Book {
	return &Book{Title: title, IsAvailable: true}
}

// Validate sprawdza pola wymagane przed zapisem
func (b *Book) Validate() error {
	if b == nil {
		return InvalidInput("książka nie może być nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return InvalidInput("tytuł książki jest wymagany")
	}
	if b.PublicationYear < 0 {
		return InvalidInput("rok wydania nie może być ujemny")
	}
	return nil
}

// Normalize przycina białe znaki w polach tekstowych
func (b *Book) Normalize() {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.ISBN = strings.TrimSpace(b.ISBN)
	b.Category = strings.TrimSpace(b.Category)
	b.Description = strings.TrimSpace(b.Description)
}

// Facets to listy wartości do filtrów katalogu
type Facets struct {
	Categories []string `json:"categories"`
	Authors    []string `json:"authors"`
}

// Stats zawiera liczniki dla panelu personelu
type Stats struct {
	TotalBooks      int `json:"total_books"`
	AvailableBooks  int `json:"available_books"`
	PendingRequests int `json:"pending_requests"`
}
