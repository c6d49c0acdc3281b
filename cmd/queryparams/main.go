// Command queryparams parses a URL-encoded parameter string, given as the
// first argument or on stdin, and prints the decoded pairs. The input may
// also be a whole URI; only its query part is parsed then.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/rohanthewiz/serr"
	"golang.org/x/text/encoding/charmap"

	uriutils "github.com/robtimus/uri-utils"
	"github.com/robtimus/uri-utils/consts"
)

func main() {
	asMap := flag.Bool("map", false, "collapse to one value per name")
	dup := flag.String("dup", "fail", "duplicate handling for -map: fail, first or last")
	multi := flag.Bool("multi", false, "group every value under its name")
	count := flag.Bool("count", false, "print only the number of parameters")
	sorted := flag.Bool("sorted", false, "sort parameters by name, then value")
	latin1 := flag.Bool("latin1", false, "decode names and values as ISO-8859-1")
	flag.Parse()

	input, err := readInput(flag.Arg(0))
	if err != nil {
		log.Fatal(serr.Wrap(err, "reading input"))
	}

	parser := uriutils.Parse(queryOf(input))
	if *latin1 {
		parser.WithEncoding(charmap.ISO8859_1)
	}

	switch {
	case *count:
		n, err := parser.Stream().Count()
		if err != nil {
			log.Fatal(serr.Wrap(err, "counting parameters"))
		}
		fmt.Println(n)

	case *asMap:
		m, err := parser.ToMap(strategyFor(*dup))
		if err != nil {
			log.Fatal(serr.Wrap(err, "collapsing parameters"))
		}
		for _, name := range slices.Sorted(maps.Keys(m)) {
			fmt.Printf("%s=%s\n", name, m[name])
		}

	case *multi:
		m, err := parser.ToMultiMap()
		if err != nil {
			log.Fatal(serr.Wrap(err, "collecting parameters"))
		}
		for _, name := range slices.Sorted(maps.Keys(m)) {
			for _, value := range m[name] {
				fmt.Printf("%s=%s\n", name, value)
			}
		}

	default:
		s := parser.Stream()
		if *sorted {
			s = s.Sorted()
		}
		err := s.ForEachOrdered(func(name, value string) {
			fmt.Printf("%s=%s\n", name, value)
		})
		if err != nil {
			log.Fatal(serr.Wrap(err, "parsing parameters"))
		}
	}
}

// queryOf returns the query part of the input. The input may be a bare
// parameter string, a query starting with '?', or a URI in the format
// "scheme://host/path?query#fragment".
func queryOf(input string) string {
	if hashPos := strings.IndexByte(input, consts.RuneHash); hashPos != -1 {
		input = input[:hashPos]
	}

	schemeEndPos := strings.Index(input, consts.SchemeDelimiter)
	if schemeEndPos != -1 {
		input = input[schemeEndPos+len(consts.SchemeDelimiter):]
		queryPos := strings.IndexByte(input, consts.RuneQuestion)
		if queryPos == -1 {
			return ""
		}
		return input[queryPos+1:]
	}

	if strings.HasPrefix(input, "?") {
		return input[1:]
	}
	return input
}

func strategyFor(dup string) uriutils.DuplicateNameStrategy {
	switch dup {
	case "fail":
		return uriutils.FailOnDuplicate
	case "first":
		return uriutils.KeepFirst
	case "last":
		return uriutils.KeepLast
	}
	log.Fatalf("unknown -dup value %q", dup)
	return uriutils.FailOnDuplicate
}

func readInput(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
