package csv_test

import (
	"fmt"
	"io"
	"strings"

	"github.com/ajitpratap0/tabula/pkg/csv"
)

func ExampleReader() {
	input := "name,quote\nann,\"a,b\"\"c\"\n"

	r, err := csv.NewReader(strings.NewReader(input), csv.DefaultDialect())
	if err != nil {
		fmt.Println(err)
		return
	}
	header, _ := r.Header()
	fmt.Println(header)

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Printf("line %d: %q\n", rec.Line, rec.Fields)
	}

	// Output:
	// [name quote]
	// line 2: ["ann" "a,b\"c"]
}
