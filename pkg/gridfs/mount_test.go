package gridfs

import (
	"context"
	"errors"
	"testing"
)

type fakeFacility struct {
	err        error
	dir        *Directory
	mountpoint string
}

func (f *fakeFacility) Name() string { return "fake" }

func (f *fakeFacility) Serve(ctx context.Context, dir *Directory, mountpoint string) error {
	f.dir = dir
	f.mountpoint = mountpoint
	return f.err
}

func mountFixture(t *testing.T) *Directory {
	g := newFakeGrid(t)
	g.envelopes["URI:DIR2:root"] = `["dirnode", {"rw_uri": "URI:DIR2:root", "children": {}}]`
	fs := g.dial(t)

	dir, err := fs.Directory(context.Background(), "URI:DIR2:root")
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	return dir
}

func TestMount_NilFacility(t *testing.T) {
	dir := mountFixture(t)

	err := dir.Mount(context.Background(), "/mnt/grid", nil)
	if !DependencyError.Has(err) {
		t.Errorf("expected DependencyError, got %v", err)
	}
}

func TestMount_FacilityFailure(t *testing.T) {
	dir := mountFixture(t)
	boom := errors.New("mount refused")

	err := dir.Mount(context.Background(), "/mnt/grid", &fakeFacility{err: boom})
	if !MountError.Has(err) {
		t.Errorf("expected MountError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestMount_PassesThrough(t *testing.T) {
	dir := mountFixture(t)
	facility := &fakeFacility{}

	if err := dir.Mount(context.Background(), "/mnt/grid", facility); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if facility.dir != dir {
		t.Error("facility did not receive the directory")
	}
	if facility.mountpoint != "/mnt/grid" {
		t.Errorf("mountpoint = %q", facility.mountpoint)
	}
}
