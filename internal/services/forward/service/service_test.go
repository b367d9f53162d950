package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"amplisend/internal/core/batch"
	"amplisend/internal/core/event"
	perr "amplisend/internal/platform/errors"
	kit "amplisend/internal/platform/testkit"
	"amplisend/internal/services/forward/domain"

	"github.com/klauspost/compress/gzip"
)

type fakeSender struct {
	sizes  []int
	types  []string
	failAt int
}

func (f *fakeSender) Send(_ context.Context, b batch.Batch) error {
	f.sizes = append(f.sizes, len(b))
	if f.failAt == len(f.sizes) {
		return perr.Transmissionf("amplitude status 500")
	}
	for _, ev := range b {
		f.types = append(f.types, ev[event.FieldEventType].(string))
	}
	return nil
}

type body struct {
	io.Reader
	enc string
}

func (b body) Close() error { return nil }
func (b body) ContentEncoding() string { return b.enc }

type fakeBlobs map[string]body

func (f fakeBlobs) Open(_ context.Context, ref domain.ObjectRef) (io.ReadCloser, error) {
	b, ok := f[ref.Bucket+"/"+ref.Key]
	if !ok {
		return nil, perr.NotFoundf("object %s not found", ref)
	}
	return b, nil
}

func events(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `{"device_id":"d%d","event_type":"e%d","time":%d}`+"\n", i, i, 1000+i)
	}
	return sb.String()
}

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(s))
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	return buf.Bytes()
}

func newSvc(blobs domain.BlobStore, snd *fakeSender, cfg Config) *Service {
	return New(blobs, event.NewNormalizer([]byte("k")), snd, cfg)
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunTextBatchesInOrder(t *testing.T) {
	snd := &fakeSender{}
	st, err := newSvc(nil, snd, Config{}).RunText(context.Background(), events(25))
	if err != nil {
		t.Fatalf("RunText: %v", err)
	}
	if !sameInts(snd.sizes, []int{10, 10, 5}) {
		t.Fatalf("batch sizes = %v", snd.sizes)
	}
	for i, typ := range snd.types {
		if typ != fmt.Sprintf("e%d", i) {
			t.Fatalf("order broken at %d: %s", i, typ)
		}
	}
	if st.Lines != 25 || st.Events != 25 || st.Batches != 3 || st.Skipped != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSkipPolicyCountsInvalidLines(t *testing.T) {
	input := events(3) + "not json\n" + `{"event_type":"x","time":1}` + "\n\n   \n" + events(2)
	snd := &fakeSender{}
	st, err := newSvc(nil, snd, Config{OnInvalid: domain.OnInvalidSkip}).RunReader(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("RunReader: %v", err)
	}
	if st.Lines != 7 || st.Events != 5 || st.Skipped != 2 || !sameInts(snd.sizes, []int{5}) {
		t.Fatalf("stats = %+v sizes = %v", st, snd.sizes)
	}
}

func TestAbortPolicyStopsOnFirstInvalid(t *testing.T) {
	input := events(3) + `{"device_id":"d"}` + "\n" + events(20)
	snd := &fakeSender{}
	st, err := newSvc(nil, snd, Config{OnInvalid: domain.OnInvalidAbort}).RunText(context.Background(), input)
	kit.MustErrCode(t, err, perr.ErrorCodeValidation)
	if e, _ := perr.As(err); e.Op() != "line 4" {
		t.Fatalf("op = %q", e.Op())
	}
	if len(snd.sizes) != 0 || st.Events != 3 {
		t.Fatalf("sent %v after abort, stats %+v", snd.sizes, st)
	}
}

func TestAbortReportsPhysicalLineNumber(t *testing.T) {
	valid := `{"device_id":"d","event_type":"e","time":1}`
	cases := map[string]string{
		"lf":   "\n\n\n" + valid + "\n\n" + `{"device_id":"d"}` + "\n" + valid,
		"crlf": "\r\n\r\n\r\n" + valid + "\r\n\r\n" + `{"device_id":"d"}` + "\r\n" + valid,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newSvc(nil, &fakeSender{}, Config{OnInvalid: domain.OnInvalidAbort, ChunkBytes: 3})
			for _, do := range []func() error{
				func() error { _, err := svc.RunText(context.Background(), input); return err },
				func() error { _, err := svc.RunReader(context.Background(), strings.NewReader(input)); return err },
			} {
				err := do()
				kit.MustErrCode(t, err, perr.ErrorCodeValidation)
				if e, _ := perr.As(err); e.Op() != "line 6" {
					t.Fatalf("op = %q", e.Op())
				}
			}
		})
	}
}

func TestIdentifyEventsJoinTheBatchStream(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 6; i++ {
		if i%2 == 0 {
			fmt.Fprintf(&sb, `{"device_id":"d%d","event_type":"e%d","time":1,"user_properties":{"$set":{"n":%d}}}`+"\n", i, i, i)
		} else {
			fmt.Fprintf(&sb, `{"device_id":"d%d","event_type":"e%d","time":1}`+"\n", i, i)
		}
	}
	snd := &fakeSender{}
	norm := event.NewNormalizer([]byte("k"), event.WithIdentify(true))
	st, err := New(nil, norm, snd, Config{BatchSize: 4}).RunText(context.Background(), sb.String())
	if err != nil {
		t.Fatalf("RunText: %v", err)
	}
	want := []string{"$identify", "e0", "e1", "$identify", "e2", "e3", "$identify", "e4", "e5"}
	if len(snd.types) != len(want) {
		t.Fatalf("types = %v", snd.types)
	}
	for i := range want {
		if snd.types[i] != want[i] {
			t.Fatalf("types = %v, want %v", snd.types, want)
		}
	}
	if !sameInts(snd.sizes, []int{4, 4, 1}) {
		t.Fatalf("batch sizes = %v", snd.sizes)
	}
	if st.Lines != 6 || st.Events != 9 || st.Identifies != 3 || st.Batches != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestTransmissionFailureAbortsRun(t *testing.T) {
	snd := &fakeSender{failAt: 2}
	st, err := newSvc(nil, snd, Config{}).RunText(context.Background(), events(45))
	kit.MustErrCode(t, err, perr.ErrorCodeTransmission)
	if len(snd.sizes) != 2 {
		t.Fatalf("sends after failure: %v", snd.sizes)
	}
	if st.Batches != 1 || st.Events != 20 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRunObjectCompressedMatchesPlain(t *testing.T) {
	input := strings.ReplaceAll(events(23), "\n", "\r\n")
	blobs := fakeBlobs{
		"b/plain.ndjson": {Reader: strings.NewReader(input)},
		"b/dump.json.gz": {Reader: bytes.NewReader(gz(t, input))},
		"b/noext":        {Reader: bytes.NewReader(gz(t, input))},
		"b/encoded":      {Reader: bytes.NewReader(gz(t, input)), enc: "gzip"},
	}
	for _, key := range []string{"plain.ndjson", "dump.json.gz", "noext", "encoded"} {
		snd := &fakeSender{}
		svc := newSvc(blobs, snd, Config{ChunkBytes: 7})
		st, err := svc.RunObject(context.Background(), domain.ObjectRef{Region: "us-west-2", Bucket: "b", Key: key})
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if !sameInts(snd.sizes, []int{10, 10, 3}) || st.BytesOut != int64(len(input)) {
			t.Fatalf("%s: sizes %v stats %+v", key, snd.sizes, st)
		}
	}
}

func TestRunObjectUnterminatedTail(t *testing.T) {
	input := events(2) + `{"user_id":"u","event_type":"last","time":5}`
	blobs := fakeBlobs{"b/k": {Reader: strings.NewReader(input)}}
	snd := &fakeSender{}
	if _, err := newSvc(blobs, snd, Config{}).RunObject(context.Background(), domain.ObjectRef{Bucket: "b", Key: "k"}); err != nil {
		t.Fatalf("RunObject: %v", err)
	}
	if len(snd.types) != 3 || snd.types[2] != "last" {
		t.Fatalf("tail line lost: %v", snd.types)
	}
}

func TestRunObjectCorruptGzip(t *testing.T) {
	data := gz(t, events(40))
	blobs := fakeBlobs{"b/x.gz": {Reader: bytes.NewReader(data[:len(data)-12])}}
	_, err := newSvc(blobs, &fakeSender{}, Config{}).RunObject(context.Background(), domain.ObjectRef{Bucket: "b", Key: "x.gz"})
	kit.MustErrCode(t, err, perr.ErrorCodeDecompression)
}

func TestRunObjectWithoutStore(t *testing.T) {
	_, err := newSvc(nil, &fakeSender{}, Config{}).RunObject(context.Background(), domain.ObjectRef{Bucket: "b", Key: "k"})
	kit.MustErrCode(t, err, perr.ErrorCodeConfiguration)
}

func TestHandleNotificationIsolatesRecords(t *testing.T) {
	blobs := fakeBlobs{"fxa/ok.ndjson": {Reader: strings.NewReader(events(12))}}
	msg := `{"Records":[
		{"eventSource":"aws:s3","awsRegion":"us-east-1","s3":{"bucket":{"name":"fxa"},"object":{"key":"missing.ndjson"}}},
		{"eventSource":"aws:sns"},
		{"eventSource":"aws:s3","awsRegion":"us-east-1","s3":{"bucket":{"name":"fxa"},"object":{"key":"ok.ndjson"}}}
	]}`
	snd := &fakeSender{}
	svc := newSvc(blobs, snd, Config{})
	n := 0
	svc.newID = func() string { n++; return fmt.Sprintf("run-%d", n) }

	rep, err := svc.HandleNotification(context.Background(), []byte(msg))
	kit.MustErrCode(t, err, perr.ErrorCodeNotFound)
	if rep.Records != 3 || rep.Ignored != 1 || len(rep.Results) != 2 || rep.Failed() != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Results[0].Code != "not_found" || rep.Results[0].RunID != "run-1" {
		t.Fatalf("first result = %+v", rep.Results[0])
	}
	if ok := rep.Results[1]; ok.Error != "" || ok.Stats.Events != 12 || ok.Ref.Key != "ok.ndjson" {
		t.Fatalf("second result = %+v", ok)
	}
	if !sameInts(snd.sizes, []int{10, 2}) {
		t.Fatalf("sizes = %v", snd.sizes)
	}
}

func TestHandleNotificationRejectsGarbage(t *testing.T) {
	_, err := newSvc(nil, &fakeSender{}, Config{}).HandleNotification(context.Background(), []byte("{"))
	kit.MustErrCode(t, err, perr.ErrorCodeValidation)
}

func TestHandleNotificationBadRecord(t *testing.T) {
	msg := `{"Records":[{"eventSource":"aws:s3","s3":{"object":{"key":"k"}}}]}`
	rep, err := newSvc(fakeBlobs{}, &fakeSender{}, Config{}).HandleNotification(context.Background(), []byte(msg))
	kit.MustErrCode(t, err, perr.ErrorCodeValidation)
	if rep.Failed() != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSvc(nil, &fakeSender{}, Config{}).RunReader(ctx, strings.NewReader(events(3)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestNewPanicsWithoutCollaborators(t *testing.T) {
	kit.MustPanic(t, func() { New(nil, nil, &fakeSender{}, Config{}) })
	kit.MustPanic(t, func() { New(nil, event.NewNormalizer(nil), nil, Config{}) })
}

func TestParseOnInvalid(t *testing.T) {
	cases := map[string]domain.OnInvalid{"": domain.OnInvalidSkip, "skip": domain.OnInvalidSkip, " ABORT ": domain.OnInvalidAbort}
	for in, want := range cases {
		got, err := ParseOnInvalid(in)
		if err != nil || got != want {
			t.Fatalf("ParseOnInvalid(%q) = %q, %v", in, got, err)
		}
	}
	_, err := ParseOnInvalid("retry")
	kit.MustErrCode(t, err, perr.ErrorCodeInvalidArgument)
}
