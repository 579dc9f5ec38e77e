package components

import (
	"context"
	"reflect"
	"testing"
	"time"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/stream"
)

func TestMergeDiff(t *testing.T) {
	log := logger.NewNullLogger()
	ctx := context.Background()

	// Create the input channels.
	chanOld := make(chan stream.Record, 10)
	chanNew := make(chan stream.Record, 10)

	// Data for NEW record.
	newRowN := stream.NewRecord() // use this to test for a NEW record on chanNew
	newRowN.SetData("JoinKey1", 1)
	newRowN.SetData("JoinKey2", "newRecKey")
	newRowN.SetData("field1", "newData1")
	newRowN.SetData("field2", "newData2")
	chanNew <- newRowN

	// Data for DELETED record.
	oldRowD := stream.NewRecord() // use this to test for a DELETED record
	oldRowD.SetData("JoinKey1", 9)
	oldRowD.SetData("JoinKey2", "junkRecKey")
	oldRowD.SetData("fieldXyz", "dataXyz")
	chanOld <- oldRowD

	// Data for CHANGED records.
	oldRowC := stream.NewRecord() // use this to test for a CHANGED record
	oldRowC.SetData("JoinKey1", 10)
	oldRowC.SetData("JoinKey2", "matching")
	oldRowC.SetData("field1", "oldData1")
	oldRowC.SetData("field2", 123)
	newRowC := stream.NewRecord()          // use this to test for a CHANGED record on chanNew compared to oldRowC
	newRowC.SetData("JoinKey1", int64(10)) // numeric keys join across int types.
	newRowC.SetData("JoinKey2", "matching")
	newRowC.SetData("field1", "changedData1")
	newRowC.SetData("field2", 456)
	chanOld <- oldRowC
	chanNew <- newRowC

	// Data for IDENTICAL records.
	oldRowI := stream.NewRecord()
	newRowI := stream.NewRecord()
	oldRowI.SetData("JoinKey1", 100)
	oldRowI.SetData("JoinKey2", "identical-y")
	oldRowI.SetData("field1", 1234)
	oldRowI.SetData("field2", 5678)
	newRowI.SetData("JoinKey1", 100)
	newRowI.SetData("JoinKey2", "identical-y")
	newRowI.SetData("field1", 1234)
	newRowI.SetData("field2", 5678)
	chanOld <- oldRowI
	chanNew <- newRowI

	// Setup the join keys to use for record comparison.
	joinKeys := om.NewOrderedMap()
	joinKeys.Set("JoinKey1", "JoinKey1")
	joinKeys.Set("JoinKey2", "JoinKey2")

	// Set up the map of keys used for record comparison.
	compareKeys := om.NewOrderedMap()
	compareKeys.Set("field1", "field1")
	compareKeys.Set("field2", "field2")

	close(chanNew)
	close(chanOld)

	// Test 1 - confirm NEW, CHANGED, DELETED, IDENTICAL rows are output.
	chanMergeDiff := NewMergeDiff(ctx, &MergeDiffConfig{
		Log:                 log,
		Name:                "MergeDiff test",
		OutputIdenticalRows: true,
		ChanOld:             chanOld,
		ChanNew:             chanNew,
		JoinKeys:            joinKeys,
		ResultFlagKeyName:   "flagField",
		CompareKeys:         compareKeys,
	})
	dataMergeDiff := make([]map[string]interface{}, 0)
	for rec := range chanMergeDiff { // for each result from MergeDiff step...
		dataMergeDiff = append(dataMergeDiff, rec.GetDataMap())
	}
	if len(dataMergeDiff) != 4 {
		t.Fatalf("expected 4 rows, got %v: %v", len(dataMergeDiff), dataMergeDiff)
	}
	assertEqual(t, dataMergeDiff[0], newRowN.GetDataMap())
	assertEqual(t, dataMergeDiff[1], oldRowD.GetDataMap())
	assertEqual(t, dataMergeDiff[2], newRowC.GetDataMap())
	assertEqual(t, dataMergeDiff[3], newRowI.GetDataMap())
	for idx, flag := range []string{"N", "D", "C", "I"} {
		if dataMergeDiff[idx]["flagField"] != flag {
			t.Errorf("row %v: expected flag %v, got %v", idx, flag, dataMergeDiff[idx]["flagField"])
		}
	}

	// Test 2 - confirm IDENTICAL rows are not passed to the output.
	chanOld2 := make(chan stream.Record, 1)
	chanNew2 := make(chan stream.Record, 1)
	rowI := stream.NewRecord()
	rowI.SetData("JoinKey1", 1)
	rowI.SetData("JoinKey2", "newRecKey")
	rowI.SetData("field1", "newData1")
	rowI.SetData("field2", "newData2")
	chanOld2 <- rowI
	chanNew2 <- rowI
	close(chanOld2)
	close(chanNew2)
	chanMergeDiff2 := NewMergeDiff(ctx, &MergeDiffConfig{
		Log:                 log,
		Name:                "MergeDiff test 2",
		ChanOld:             chanOld2,
		ChanNew:             chanNew2,
		JoinKeys:            joinKeys,
		CompareKeys:         compareKeys,
		OutputIdenticalRows: false,
	})
	rowCount := 0
	for range chanMergeDiff2 { // wait for channel to close...
		rowCount++
	}
	if rowCount != 0 {
		t.Fatal("Merge Diff didn't swallow identical records.")
	}

	// Test 3 - confirm the MergeDiff respects cancellation.
	ctx3, cancel := context.WithCancel(ctx)
	chanMergeDiff3 := NewMergeDiff(ctx3, &MergeDiffConfig{
		Log:         log,
		Name:        "MergeDiff test 3",
		ChanOld:     make(chan stream.Record, 10), // new channels that we don't close.
		ChanNew:     make(chan stream.Record, 10),
		JoinKeys:    joinKeys,
		CompareKeys: compareKeys,
	})
	cancel()
	select {
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for MergeDiff to shutdown.")
	case _, ok := <-chanMergeDiff3:
		if ok {
			t.Fatal("unexpected output from cancelled MergeDiff")
		}
	}
}

func assertEqual(t *testing.T, m1 map[string]interface{}, m2 map[string]interface{}) {
	t.Helper()
	if !reflect.DeepEqual(m1, m2) {
		t.Error("Unexpected difference found. Record-1: ", m1, "Record-2:", m2)
	}
}
