// Command phrasepack is a phrase-pack plugin serving a YAML tone catalog.
// Point GADFLY_PHRASE_PLUGIN at the binary and GADFLY_PHRASEPACK_FILE at a
// catalog; without a file it serves the built-in tones.
package main

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/gadfly/internal/phrases"
)

func main() {
	catalog := phrases.Default()
	if path := os.Getenv("GADFLY_PHRASEPACK_FILE"); path != "" {
		custom, err := phrases.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "phrasepack: %v\n", err)
			os.Exit(1)
		}
		catalog = catalog.Merge(custom)
	}
	phrases.Serve(phrases.CatalogPack{Catalog: catalog})
}
