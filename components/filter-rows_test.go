package components

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/stream"
)

func newRec(kv ...interface{}) stream.Record {
	rec := stream.NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		rec.SetData(kv[i].(string), kv[i+1])
	}
	return rec
}

func TestNewFilterRows(t *testing.T) {
	log := logger.NewNullLogger()
	defaultTimeoutSec := 10

	// Test 1
	t.Log("Test 1, FilterRows component shuts down on cancel...")
	ctx, cancel := context.WithCancel(context.Background())
	inputChan1 := make(chan stream.Record, 10)
	out1, err := NewFilterRows(ctx, &FilterRowsConfig{
		Log:            log,
		Name:           "test-filter-max",
		InputChan:      inputChan1,
		FilterType:     FilterRowsGetMax,
		FilterMetadata: "myField",
	})
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := waitForClose(out1, defaultTimeoutSec); err != nil {
		t.Fatal("Test 1, ", err)
	}

	// Test 2
	t.Log("Test 2, FilterRows->", FilterRowsGetMax, " doesn't produce output rows if its input channel is still open...")
	inputChan2 := make(chan stream.Record, 10)
	inputChan2 <- newRec("myField", 1)
	inputChan2 <- newRec("myField", 100)
	out2, err := NewFilterRows(context.Background(), &FilterRowsConfig{
		Log: log, Name: "test-filter-max", InputChan: inputChan2, FilterType: FilterRowsGetMax, FilterMetadata: "myField",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := waitForRows(t, out2, 1, 1); err == nil {
		t.Fatal("Test 2, unexpected output from FilterRows->", FilterRowsGetMax, "; expected timeout from no rows; got some")
	}

	// Test 3
	t.Log("Test 3, FilterRows->", FilterRowsGetMax, " returns the record with max value once its input is closed...")
	inputChan3 := make(chan stream.Record, 10)
	inputChan3 <- newRec("myField", int64(9))
	inputChan3 <- newRec("myField", int64(100)) // a string compare would put 9 first.
	inputChan3 <- newRec("myField", nil)
	inputChan3 <- newRec("myField", int64(20))
	close(inputChan3)
	out3, err := NewFilterRows(context.Background(), &FilterRowsConfig{
		Log: log, Name: "test-filter-max", InputChan: inputChan3, FilterType: FilterRowsGetMax, FilterMetadata: "myField",
	})
	if err != nil {
		t.Fatal(err)
	}
	got := Drain(context.Background(), out3)
	if len(got) != 1 || got[0].GetData("myField") != int64(100) {
		t.Fatalf("Test 3, expected max record 100, got %v", got)
	}
}

func TestFilterRowsJsonLogic(t *testing.T) {
	log := logger.NewNullLogger()
	in := make(chan stream.Record, 10)
	in <- newRec("country", "UK", "age", int64(30))
	in <- newRec("country", "FR", "age", int64(40))
	in <- newRec("country", "UK", "age", int64(50))
	close(in)
	out, err := NewFilterRows(context.Background(), &FilterRowsConfig{
		Log:            log,
		Name:           "test-jsonlogic",
		InputChan:      in,
		FilterType:     FilterRowsJsonLogic,
		FilterMetadata: `{"==": [{"var": "country"}, "UK"]}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := Drain(context.Background(), out)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %v", len(got))
	}
	for _, r := range got {
		if r.GetData("country") != "UK" {
			t.Errorf("unexpected row %v", r.GetDataMap())
		}
	}
}

func TestFilterRowsInvalidJsonLogic(t *testing.T) {
	if err := ValidateFilter(FilterRowsJsonLogic, `{"==": [`); err == nil {
		t.Fatal("expected an error for an invalid rule")
	}
	if err := ValidateFilter("Unknown", ""); err == nil {
		t.Fatal("expected an error for an unknown filter")
	}
}

func TestFilterRowsGreaterThan(t *testing.T) {
	log := logger.NewNullLogger()
	hwm := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	in := make(chan stream.Record, 10)
	in <- newRec("purchase_date", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	in <- newRec("purchase_date", hwm)
	in <- newRec("purchase_date", time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC))
	close(in)
	out, err := NewFilterRows(context.Background(), &FilterRowsConfig{
		Log:            log,
		Name:           "test-cursor",
		InputChan:      in,
		FilterType:     FilterRowsGreaterThan,
		FilterMetadata: "purchase_date",
		FilterValue:    hwm,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := Drain(context.Background(), out)
	if len(got) != 1 || !got[0].GetData("purchase_date").(time.Time).After(hwm) {
		t.Fatalf("expected only rows after the high-water mark, got %v", got)
	}
}

func waitForClose(dataChan chan stream.Record, timeoutSec int) error {
	timeout := time.After(time.Duration(timeoutSec) * time.Second)
	for {
		select {
		case _, ok := <-dataChan:
			if !ok {
				return nil
			}
		case <-timeout:
			return errors.New("timeout waiting for channel to close")
		}
	}
}

func waitForRows(t *testing.T, dataChan chan stream.Record, waitForNumRows int, timeoutSec int) error {
	idx := 0
	expectedRowsChan := make(chan struct{}, 1)
	go func() { // consume rows
		for range dataChan {
			idx++
			if idx >= waitForNumRows { // if we counted enough rows...
				expectedRowsChan <- struct{}{} // send completion message.
				break
			}
		}
	}()
	// Wait for expected number of rows or timeout.
	select {
	case <-expectedRowsChan:
	case <-time.After(time.Duration(timeoutSec) * time.Second):
		return errors.New("timeout waiting for expected number of rows")
	}
	return nil
}
