// Package book2pdf downloads books from an online reader that serves pages
// as HTML fragments over Socket.IO, and assembles them into one PDF or a
// standalone HTML document.
//
// # Quick Start
//
// Dial the reader, download a book into a directory, then convert it:
//
//	client, err := book2pdf.Dial(ctx, book2pdf.DialConfig{
//	    SocketURL: "https://libra23.ibuk.pl/socket.io/",
//	    APIKey:    apiKey,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	dir := book2pdf.BookDir{Root: "Ann - Go"}
//	m, err := book2pdf.NewDownloader().DownloadBook(ctx, client, book2pdf.BookRequest{
//	    Manifest: book2pdf.NewManifest(fields), // scraped book metadata
//	    Dir:      dir,
//	})
//
//	conv, err := book2pdf.NewConverter()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conv.Close()
//
//	res, err := conv.Convert(ctx, book2pdf.ConvertRequest{Dir: dir, Format: book2pdf.FormatPDF})
//
// The download stops at the first page the account may not read; the
// manifest records how many pages made it to disk.
//
// # Conversion Pipeline
//
// PDF conversion follows these stages:
//
//  1. Empty fragments are detected and skipped
//  2. Each remaining fragment renders to a one-page PDF in headless Chrome
//  3. The parts are merged in page order into the output file
//
// A page that fails to render or merge is reported in ConvertResult.Failed
// and left out; the rest of the book is still written. HTML conversion
// concatenates the fragments into a single file with the styles inlined and
// the cover embedded.
//
// # Configuration
//
// Use functional options to customize the converter:
//
//	conv, err := book2pdf.NewConverter(
//	    book2pdf.WithRenderWorkers(4),
//	    book2pdf.WithPaperSize(book2pdf.PaperLetter),
//	    book2pdf.WithPageTimeout(time.Minute),
//	    book2pdf.WithAssetPath("/path/to/assets"),
//	)
//
// An asset directory may override templates/book.html and styles/cover.css.
//
// # Browser Requirements
//
// PDF generation requires Chrome/Chromium. The go-rod library automatically
// downloads a managed Chromium instance on first run (~/.cache/rod/browser/).
//
// For containers and CI environments, set ROD_NO_SANDBOX=1 to disable the
// Chrome sandbox. Use ROD_BROWSER_BIN to specify a custom Chrome binary.
package book2pdf
