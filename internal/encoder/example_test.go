package encoder_test

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jittakal/kafeventlake/internal/encoder"
	pkgencoder "github.com/jittakal/kafeventlake/pkg/encoder"
	"github.com/jittakal/kafeventlake/pkg/event"
	"github.com/jittakal/kafeventlake/pkg/table"
)

func ExampleFactory() {
	enc, err := encoder.NewFactory(pkgencoder.FormatParquet, "", nil).CreateEncoder()
	if err != nil {
		fmt.Println(err)
		return
	}

	batch := table.NewBatch(
		event.Record{"event_id": event.StringValue("evt-1"), "doc_page_url": event.StringValue("/home")},
		event.Record{"event_id": event.StringValue("evt-2")},
	)

	var buf bytes.Buffer
	stats, err := enc.Encode(context.Background(), &buf, batch)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(enc.FileExtension(), stats.RecordCount, stats.ColumnCount)
	// Output: .parquet 2 2
}
