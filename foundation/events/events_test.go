package events_test

import (
	"encoding/json"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Dispatch(t *testing.T) {
	t.Log("Given the need to fan events out to registered receivers.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen dispatching a named event.", testID)
		{
			evts := events.New()
			ch := evts.Acquire("client")

			evts.Dispatch(events.BlockApplied, map[string]int{"height": 2})

			var doc struct {
				Event string         `json:"event"`
				Data  map[string]int `json:"data"`
			}
			if err := json.Unmarshal([]byte(<-ch), &doc); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the event: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to decode the event.", success, testID)

			if doc.Event != events.BlockApplied || doc.Data["height"] != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould get back the event: got %+v", failed, testID, doc)
			}
			t.Logf("\t%s\tTest %d:\tShould get back the event.", success, testID)

			if err := evts.Release("client"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to release the channel: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to release the channel.", success, testID)

			if err := evts.Release("client"); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould fail releasing twice.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail releasing twice.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen recording events through a Multi dispatcher.", testID)
		{
			var r1, r2 events.Recorder
			m := events.Multi{&r1, &r2}

			m.Dispatch(events.RoundApplied, nil)
			m.Dispatch(events.ForgerMissing, nil)
			m.Dispatch(events.ForgerMissing, nil)

			if r1.Count(events.ForgerMissing) != 2 || len(r2.Names()) != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould record every event: got %v %v", failed, testID, r1.Names(), r2.Names())
			}
			t.Logf("\t%s\tTest %d:\tShould record every event.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen holding events in a Buffer.", testID)
		{
			var b events.Buffer
			var r events.Recorder

			b.Dispatch(events.TransactionApplied, 1)
			b.Dispatch(events.TransactionApplied, 2)
			if len(r.Names()) != 0 || b.Len() != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould hold the events: got %d", failed, testID, b.Len())
			}
			t.Logf("\t%s\tTest %d:\tShould hold the events.", success, testID)

			b.Flush(&r)
			got := r.Events()
			if len(got) != 2 || got[0].Payload != 1 || got[1].Payload != 2 || b.Len() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould flush the events in order: got %v", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould flush the events in order.", success, testID)

			b.Dispatch(events.TransactionReverted, 3)
			b.Discard()
			b.Flush(&r)
			if len(r.Names()) != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould drop discarded events: got %v", failed, testID, r.Names())
			}
			t.Logf("\t%s\tTest %d:\tShould drop discarded events.", success, testID)
		}
	}
}
