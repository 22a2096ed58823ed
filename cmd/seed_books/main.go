package main

import (
	"context"
	"os"

	"library-lending/internal/app"
	"library-lending/internal/config"
	"library-lending/internal/library"
	"library-lending/internal/models"
)

// Przykładowy katalog; ponowne uruchomienie pomija istniejące pozycje
var sampleBooks = []models.Book{
	{ISBN: "978-83-7578-063-5", Title: "Wiedźmin: Ostatnie życzenie", Author: "Andrzej Sapkowski", PublicationYear: 1993, Category: "Fantasy",
		Description: "Opowiadania o Geralcie z Rivii, łowcy potworów."},
	{ISBN: "978-83-7327-987-6", Title: "Zbrodnia i kara", Author: "Fiodor Dostojewski", PublicationYear: 1866, Category: "Klasyka",
		Description: "Powieść psychologiczna o Rodionie Raskolnikowie."},
	{ISBN: "978-83-08-06178-0", Title: "Sapiens: Od zwierząt do bogów", Author: "Yuval Noah Harari", PublicationYear: 2011, Category: "Popularnonaukowa"},
	{ISBN: "978-83-7578-215-8", Title: "Rok 1984", Author: "George Orwell", PublicationYear: 1949, Category: "Science Fiction",
		Description: "Dystopia o państwie totalnej inwigilacji."},
	{ISBN: "978-83-240-4532-0", Title: "Harry Potter i Kamień Filozoficzny", Author: "J.K. Rowling", PublicationYear: 1997, Category: "Fantasy"},
	{ISBN: "978-83-7506-651-3", Title: "Władca Pierścieni: Drużyna Pierścienia", Author: "J.R.R. Tolkien", PublicationYear: 1954, Category: "Fantasy"},
	{ISBN: "978-83-240-5896-2", Title: "Mistrz i Małgorzata", Author: "Michaił Bułhakow", PublicationYear: 1967, Category: "Klasyka",
		Description: "Satyra na sowiecką Moskwę lat 30."},
	{Title: "Pan Tadeusz", Author: "Adam Mickiewicz", PublicationYear: 1834, Category: "Klasyka"},
	{Title: "Notatki z laboratorium", Category: "Materiały wewnętrzne"},
}

func main() {
	ctx := context.Background()
	a, cfg := app.MustOpen(ctx)
	defer a.Close()

	if cfg.Backend == config.BackendMemory {
		a.Logger.Warn("STORAGE_BACKEND=memory - dane znikną po zakończeniu programu")
	}

	rows := make([]library.ImportRow, 0, len(sampleBooks))
	for i := range sampleBooks {
		book := sampleBooks[i]
		rows = append(rows, library.ImportRow{Line: i + 1, Book: &book})
	}

	report, err := a.Service.ImportBooks(ctx, rows)
	if err != nil {
		a.Logger.Error("Błąd dodawania książek", "error", err)
		a.Close()
		os.Exit(1)
	}
	for _, p := range report.Problems {
		a.Logger.Info("Pominięto książkę", "title", p.Title, "reason", p.Reason)
	}
	a.Logger.Info("Dodano przykładowe książki", "created", report.Created, "skipped", report.Skipped, "total", len(sampleBooks))
}
