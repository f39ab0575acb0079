package gridfs

import (
	"context"
	"net/http"
	"testing"
)

const (
	writableDirEnvelope  = `["dirnode", {"mutable": true, "rw_uri": "URI:DIR2:target", "ro_uri": "URI:DIR2-RO:target", "children": {}}]`
	readOnlyDirEnvelope  = `["dirnode", {"mutable": true, "ro_uri": "URI:DIR2-RO:frozen", "children": {}}]`
	mutableFileEnvelope  = `["filenode", {"mutable": true, "rw_uri": "URI:SSK:file", "ro_uri": "URI:SSK-RO:file", "size": 9}]`
	readOnlyFileEnvelope = `["filenode", {"mutable": false, "ro_uri": "URI:CHK:file", "size": 9}]`
)

func attachFixture(t *testing.T) (*fakeGrid, *Filesystem) {
	g := newFakeGrid(t)
	g.envelopes["URI:DIR2:target"] = writableDirEnvelope
	g.envelopes["URI:DIR2-RO:frozen"] = readOnlyDirEnvelope
	g.envelopes["URI:SSK:file"] = mutableFileEnvelope
	g.envelopes["URI:CHK:file"] = readOnlyFileEnvelope
	return g, g.dial(t)
}

func TestAttach_ReadOnlyByDefault(t *testing.T) {
	g, fs := attachFixture(t)
	ctx := context.Background()

	file, _ := fs.File(ctx, "URI:SSK:file")
	target, _ := fs.Directory(ctx, "URI:DIR2:target")

	name, err := file.AttachTo(ctx, target, "notes.txt", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "notes.txt" {
		t.Errorf("name = %q", name)
	}

	if len(g.links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(g.links))
	}
	if g.links[0].child != "URI:SSK-RO:file" {
		t.Errorf("linked cap = %q, want the read cap", g.links[0].child)
	}
	if g.links[0].replace != "false" {
		t.Errorf("replace = %q, want false", g.links[0].replace)
	}
}

func TestAttach_WritableUsesWriteCap(t *testing.T) {
	g, fs := attachFixture(t)
	ctx := context.Background()

	file, _ := fs.File(ctx, "URI:SSK:file")
	target, _ := fs.Directory(ctx, "URI:DIR2:target")

	if _, err := file.AttachTo(ctx, target, "notes.txt", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.links[0].child != "URI:SSK:file" {
		t.Errorf("linked cap = %q, want the write cap", g.links[0].child)
	}
}

func TestAttach_WritableRequestOnReadOnlySource(t *testing.T) {
	g, fs := attachFixture(t)
	ctx := context.Background()

	file, _ := fs.File(ctx, "URI:CHK:file")
	target, _ := fs.Directory(ctx, "URI:DIR2:target")

	_, err := file.AttachTo(ctx, target, "notes.txt", true)
	if !PermissionError.Has(err) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if len(g.links) != 0 {
		t.Error("no link request must be issued on a permission failure")
	}

	// The same source attaches fine read-only.
	if _, err := file.AttachTo(ctx, target, "notes.txt", false); err != nil {
		t.Errorf("read-only attach should succeed: %v", err)
	}
}

func TestAttach_ReadOnlyTarget(t *testing.T) {
	g, fs := attachFixture(t)
	ctx := context.Background()

	file, _ := fs.File(ctx, "URI:SSK:file")
	frozen, _ := fs.Directory(ctx, "URI:DIR2-RO:frozen")

	_, err := file.AttachTo(ctx, frozen, "notes.txt", false)
	if !PermissionError.Has(err) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if len(g.links) != 0 {
		t.Error("no link request must reach the grid for a read-only target")
	}
}

func TestAttach_NameCollision(t *testing.T) {
	g, fs := attachFixture(t)
	g.linkStatus = http.StatusConflict
	ctx := context.Background()

	file, _ := fs.File(ctx, "URI:CHK:file")
	target, _ := fs.Directory(ctx, "URI:DIR2:target")

	_, err := file.AttachTo(ctx, target, "exists.txt", false)
	if !ObjectError.Has(err) {
		t.Errorf("expected ObjectError category, got %v", err)
	}
}

func TestAttach_SanitizesName(t *testing.T) {
	g, fs := attachFixture(t)
	ctx := context.Background()

	file, _ := fs.File(ctx, "URI:CHK:file")
	target, _ := fs.Directory(ctx, "URI:DIR2:target")

	name, err := file.AttachTo(ctx, target, "../evil;name.txt", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "..evilname.txt" {
		t.Errorf("sanitized name = %q", name)
	}
	if g.links[0].name != name {
		t.Errorf("link used %q, returned %q", g.links[0].name, name)
	}
}

func TestAttach_DirectoryAsSource(t *testing.T) {
	g, fs := attachFixture(t)
	g.envelopes["URI:DIR2:src"] = `["dirnode", {"mutable": true, "rw_uri": "URI:DIR2:src", "ro_uri": "URI:DIR2-RO:src", "children": {}}]`
	ctx := context.Background()

	src, _ := fs.Directory(ctx, "URI:DIR2:src")
	target, _ := fs.Directory(ctx, "URI:DIR2:target")

	if _, err := src.AttachTo(ctx, target, "subdir", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.links[0].child != "URI:DIR2:src" {
		t.Errorf("linked cap = %q, want the directory write cap", g.links[0].child)
	}
}

func TestAttach_NilSource(t *testing.T) {
	_, fs := attachFixture(t)
	ctx := context.Background()

	target, _ := fs.Directory(ctx, "URI:DIR2:target")
	if _, err := fs.Attach(ctx, nil, target, "x", false); !InvalidObjectError.Has(err) {
		t.Errorf("expected InvalidObjectError, got %v", err)
	}
}
