package event_test

import (
	"fmt"

	"github.com/jittakal/kafeventlake/pkg/event"
)

func ExampleDecode() {
	v, err := event.Decode([]byte(`{"event_id":"evt-123","event_type":"search","_doc":{"hits":3}}`))
	if err != nil {
		panic(err)
	}

	id, typ := event.Identity(v)
	doc, _ := v.Get("_doc")
	fmt.Println(id, typ, doc)
	// Output: evt-123 search {"hits":3}
}

func ExamplePartitionID_String() {
	pid := event.PartitionID{
		Topic:     "user-events",
		Partition: 5,
	}

	fmt.Println(pid.String())
	// Output: user-events-5
}
