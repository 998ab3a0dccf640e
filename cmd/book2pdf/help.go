package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: book2pdf <command> [flags] [args]")
	fmt.Fprintln(w, "       book2pdf <book-url> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  download   Download a book, then convert it (default)")
	fmt.Fprintln(w, "  convert    Convert a downloaded book directory")
	fmt.Fprintln(w, "  query      Show a book's metadata")
	fmt.Fprintln(w, "  config     Print the effective configuration")
	fmt.Fprintln(w, "  doctor     Check the environment")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'book2pdf help <command>' for details on a specific command.")
}

func printCommonUsage(w io.Writer) {
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Debug logging")
	fmt.Fprintln(w, "      --log-level <s>       debug, info, warn, error")
	fmt.Fprintln(w, "      --log-format <s>      text, json")
	fmt.Fprintln(w, "      --metrics-file <path> Write Prometheus metrics on exit")
}

func printAuthUsage(w io.Writer) {
	fmt.Fprintln(w, "Account:")
	fmt.Fprintln(w, "  -u, --email <s>           Account email (password from BOOK2PDF_PASSWORD)")
	fmt.Fprintln(w, "      --api-key <s>         API key, skips login")
}

func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Conversion:")
	fmt.Fprintln(w, "  -o, --output <path>       Output file")
	fmt.Fprintln(w, "      --format <s>          pdf (default), html")
	fmt.Fprintln(w, "  -w, --workers <n>         Concurrent browser tabs (1-10, default 10)")
	fmt.Fprintln(w, "  -t, --timeout <d>         Per-page render timeout (default 30s)")
	fmt.Fprintln(w, "      --paper <s>           a4 (default), letter")
	fmt.Fprintln(w, "      --assets <dir>        Override templates/book.html and styles/cover.css")
}

// printCommandUsage prints usage for one command.
func printCommandUsage(w io.Writer, cmd string) {
	switch cmd {
	case cmdDownload:
		fmt.Fprintln(w, "Usage: book2pdf [download] <book-url> [flags]")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Download every accessible page, then convert unless --no-convert.")
		fmt.Fprintln(w, "Pages go to <output.dir>/<Author - Title>/ and are removed after")
		fmt.Fprintln(w, "conversion unless --keep.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Download:")
		fmt.Fprintln(w, "      --page-count <n>      Pages to download (0 = all)")
		fmt.Fprintln(w, "      --rate <f>            Max pages per second (0 = unpaced)")
		fmt.Fprintln(w, "      --no-cover            Skip the cover image")
		fmt.Fprintln(w, "      --no-convert          Download only")
		fmt.Fprintln(w, "      --keep                Keep downloaded pages")
		fmt.Fprintln(w)
		printAuthUsage(w)
		fmt.Fprintln(w)
		printRenderUsage(w)
		fmt.Fprintln(w)
		printCommonUsage(w)
	case cmdConvert:
		fmt.Fprintln(w, "Usage: book2pdf convert <dir> [flags]")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Convert a downloaded book directory to PDF or HTML.")
		fmt.Fprintln(w)
		printRenderUsage(w)
		fmt.Fprintln(w, "      --no-cover            Leave the cover out of HTML output")
		fmt.Fprintln(w)
		printCommonUsage(w)
	case cmdQuery:
		fmt.Fprintln(w, "Usage: book2pdf query <book-url> [flags]")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Print author, title, description and cover URL.")
		fmt.Fprintln(w)
		printAuthUsage(w)
		fmt.Fprintln(w)
		printCommonUsage(w)
	case cmdConfig:
		fmt.Fprintln(w, "Usage: book2pdf config [flags]")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Print the configuration after merging the config file,")
		fmt.Fprintln(w, "BOOK2PDF_* variables and flags. Accepts every download flag.")
	case cmdDoctor:
		fmt.Fprintln(w, "Usage: book2pdf doctor [--json]")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Check Chrome, container/CI settings, credentials and the temp directory.")
	case cmdVersion:
		fmt.Fprintln(w, "Usage: book2pdf version")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Show version information.")
	case cmdHelp:
		fmt.Fprintln(w, "Usage: book2pdf help [command]")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Show help for a command.")
	}
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return ExitSuccess
	}

	switch args[0] {
	case cmdDownload, cmdConvert, cmdQuery, cmdConfig, cmdDoctor, cmdVersion, cmdHelp:
		printCommandUsage(env.Stdout, args[0])
		return ExitSuccess
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
		return ExitUsage
	}
}
