package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/google/go-cmp/cmp"
)

const zhviSample = "\xEF\xBB\xBFRegionID,SizeRank,RegionName,State,StateCodeFIPS,MunicipalCodeFIPS,2020-01-31,2020-02-29\n" +
	"3101,0,Los Angeles County,CA,6,37,650000.5,655000\n" +
	"139,1,Cook County,IL,17,31,,250000\n"

func TestReadTable_InfersTypes(t *testing.T) {
	got, err := ReadTable("prices", strings.NewReader(zhviSample[3:]))
	if err != nil {
		t.Fatalf("ReadTable() error: %v", err)
	}

	wantCols := []string{"RegionID", "SizeRank", "RegionName", "State", "StateCodeFIPS", "MunicipalCodeFIPS", "2020-01-31", "2020-02-29"}
	if diff := cmp.Diff(wantCols, got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	want := []core.Row{
		{"RegionID": int64(3101), "SizeRank": int64(0), "RegionName": "Los Angeles County", "State": "CA",
			"StateCodeFIPS": int64(6), "MunicipalCodeFIPS": int64(37), "2020-01-31": 650000.5, "2020-02-29": int64(655000)},
		{"RegionID": int64(139), "SizeRank": int64(1), "RegionName": "Cook County", "State": "IL",
			"StateCodeFIPS": int64(17), "MunicipalCodeFIPS": int64(31), "2020-01-31": nil, "2020-02-29": int64(250000)},
	}
	if diff := cmp.Diff(want, got.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTable_DeclaresColumnTypes(t *testing.T) {
	got, err := ReadTable("prices", strings.NewReader("code,name,score,2020-01-31\n06,LA,1.5,\n17,Cook,2,NA\n"))
	if err != nil {
		t.Fatalf("ReadTable() error: %v", err)
	}

	want := map[string]core.ColumnType{
		"code":  core.TypeInteger,
		"name":  core.TypeString,
		"score": core.TypeFloat,
	}
	if diff := cmp.Diff(want, got.Types); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	if typ := got.Type("2020-01-31"); typ != "" {
		t.Errorf("all-missing column declared as %s, want undeclared", typ)
	}
}

func TestReadTable_MixedColumnStaysString(t *testing.T) {
	got, err := ReadTable("t", strings.NewReader("code\n06\nXX\n"))
	if err != nil {
		t.Fatalf("ReadTable() error: %v", err)
	}
	if diff := cmp.Diff([]core.Value{"06", "XX"}, got.Column("code")); diff != "" {
		t.Errorf("column mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTable_Empty(t *testing.T) {
	got, err := ReadTable("t", strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadTable() error: %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("got %v, want empty table", got)
	}
}

func TestReadTable_Malformed(t *testing.T) {
	_, err := ReadTable("t", strings.NewReader("a,b\n1,2,3\n"))
	if err == nil {
		t.Fatal("ReadTable() error = nil, want field count error")
	}
	if !strings.Contains(err.Error(), "parse csv") {
		t.Errorf("error = %q, want it to mention parse csv", err)
	}
}

func TestCSVReader_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(zhviSample))
	}))
	defer srv.Close()

	got, err := NewCSVReader(time.Second).Fetch(context.Background(), srv.URL+"/zhvi.csv?t=1")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got.Columns[0] != "RegionID" {
		t.Errorf("first column = %q, want BOM stripped RegionID", got.Columns[0])
	}
	if got.Len() != 2 {
		t.Errorf("rows = %d, want 2", got.Len())
	}
}

func TestCSVReader_FetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewCSVReader(time.Second).Fetch(context.Background(), srv.URL+"/missing.csv?token=secret")
	if err == nil {
		t.Fatal("Fetch() error = nil, want status error")
	}
	if got := core.MapError(err).Code; got != "SRC002" {
		t.Errorf("MapError code = %q, want SRC002 (err: %v)", got, err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks query string: %v", err)
	}
}

func TestCSVReader_FetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a\n1\n"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewCSVReader(time.Second).Fetch(ctx, srv.URL); err == nil {
		t.Fatal("Fetch() with cancelled context succeeded")
	}
}

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"file with BOM", "\xEF\xBB\xBFhello,world", "hello,world"},
		{"file without BOM", "hello,world", "hello,world"},
		{"empty file", "", ""},
		{"only BOM", "\xEF\xBB\xBF", ""},
		{"partial BOM at start", "\xEF\xBBabc", "\xEF\xBBabc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			buf := make([]byte, 64)
			r := skipBOM(strings.NewReader(tt.input))
			for {
				n, err := r.Read(buf)
				b.Write(buf[:n])
				if err != nil {
					break
				}
			}
			if got := b.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
