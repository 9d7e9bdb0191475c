package tables

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const nodesCSV = `node_id,pop_name,node_type_id,pos_x
0,PN,100,1.5
1,PN,100,2.5
2,PV,101,
`

func TestRead_Comma(t *testing.T) {
	tbl, err := Read("nodes", strings.NewReader(nodesCSV))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.Len())
	}
	if got := tbl.String(2, "pop_name"); got != "PV" {
		t.Errorf("unexpected pop_name: %q", got)
	}
	if v, ok := tbl.Float(1, "pos_x"); !ok || v != 2.5 {
		t.Errorf("unexpected pos_x: %v %v", v, ok)
	}
	if _, ok := tbl.Float(2, "pos_x"); ok {
		t.Error("expected empty pos_x to be absent")
	}
}

func TestRead_Spaces(t *testing.T) {
	in := "node_type_id  pop_name model_type\n100 PN biophysical\n101  PV  point_process\n"
	tbl, err := Read("node_types", strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tbl.Len() != 2 || tbl.String(1, "model_type") != "point_process" {
		t.Fatalf("unexpected table: %d rows, %q", tbl.Len(), tbl.String(1, "model_type"))
	}
}

func TestRead_QuotedCells(t *testing.T) {
	in := "Source,Target,Percent\n\"['PN']\",\"['PV']\",\"[1.0 2.0 3.0]\"\n"
	tbl, err := Read("report", strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := tbl.String(0, "Percent"); got != "[1.0 2.0 3.0]" {
		t.Errorf("unexpected cell: %q", got)
	}
}

func TestRead_TabsAndMultilineCells(t *testing.T) {
	in := "Source\tTarget\tNote\nPN\tPV\t\"two\nlines\"\nPV\tPN\t\n"
	tbl, err := Read("report", strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", tbl.Len())
	}
	if got := tbl.String(0, "Note"); got != "two\nlines" {
		t.Errorf("unexpected cell: %q", got)
	}
	if got := tbl.String(1, "Target"); got != "PN" {
		t.Errorf("unexpected target: %q", got)
	}
}

func TestRead_FieldCountMismatch(t *testing.T) {
	if _, err := Read("bad", strings.NewReader("a,b\n1,2,3\n")); err == nil {
		t.Fatal("expected error for a row wider than the header")
	}
}

func TestRequire(t *testing.T) {
	tbl, _ := Read("nodes", strings.NewReader(nodesCSV))
	err := tbl.Require("pop_name", "pos_z")
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	var mce *MissingColumnError
	if !errors.As(err, &mce) || mce.Column != "pos_z" || mce.Table != "nodes" {
		t.Fatalf("unexpected error: %#v", err)
	}
}

func TestGroupByAndUnique(t *testing.T) {
	tbl, _ := Read("nodes", strings.NewReader(nodesCSV))
	keys, groups := tbl.GroupBy("pop_name")
	if len(keys) != 2 || keys[0] != "PN" || len(groups["PN"]) != 2 {
		t.Fatalf("unexpected groups: %v %v", keys, groups)
	}
	ids := tbl.SortedUnique("node_type_id")
	if len(ids) != 2 || ids[0] != "100" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestJoin(t *testing.T) {
	edges := New("edges", []string{"source_node_id", "target_node_id"})
	edges.Append([]string{"0", "2"})
	edges.Append([]string{"9", "1"})
	nodes, _ := Read("nodes", strings.NewReader(nodesCSV))

	if err := edges.Join(nodes, "source_node_id", "node_id", "source_", "pop_name"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := edges.String(0, "source_pop_name"); got != "PN" {
		t.Errorf("unexpected join value: %q", got)
	}
	if got := edges.String(1, "source_pop_name"); got != "" {
		t.Errorf("expected unmatched row to be empty, got %q", got)
	}
}

func TestFilterDoesNotShareRows(t *testing.T) {
	tbl, _ := Read("nodes", strings.NewReader(nodesCSV))
	sub := tbl.Filter(func(i int) bool { return i == 0 })
	sub.Set(0, "pop_name", "changed")
	if tbl.String(0, "pop_name") != "PN" {
		t.Fatal("filtered table wrote through to its parent")
	}
}

func TestLoad_Compressed(t *testing.T) {
	dir := t.TempDir()

	var zbuf bytes.Buffer
	zw, err := zstd.NewWriter(&zbuf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zw.Write([]byte(nodesCSV))
	zw.Close()
	zpath := filepath.Join(dir, "nodes.csv.zst")
	if err := os.WriteFile(zpath, zbuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	var gbuf bytes.Buffer
	gw := gzip.NewWriter(&gbuf)
	gw.Write([]byte(nodesCSV))
	gw.Close()
	gpath := filepath.Join(dir, "nodes.csv.gz")
	if err := os.WriteFile(gpath, gbuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{zpath, gpath} {
		tbl, err := Load(p)
		if err != nil {
			t.Fatalf("Load(%s): %v", p, err)
		}
		if tbl.Name != "nodes" || tbl.Len() != 3 {
			t.Fatalf("Load(%s): name=%q rows=%d", p, tbl.Name, tbl.Len())
		}
	}
}
