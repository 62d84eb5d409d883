package mdio

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/pithecene-io/mdio/internal/jsondoc"
	"github.com/pithecene-io/mdio/stats"
	"github.com/pithecene-io/mdio/zarr"
)

// Variable is a labeled zarr array together with its descriptive metadata
// and user attributes.
//
// A Variable is immutable apart from its user attributes. Slice returns a
// new Variable over a sub-region of the same array; all Variables derived
// from one Open or Create share their attributes, so an update through any
// of them is visible through all.
type Variable struct {
	name       string
	longName   string
	metadata   map[string]any // reduced: no variable_name, no user attributes
	store      *zarr.Store
	attributes *AttributeHolder
	logger     logrus.FieldLogger
}

// Open opens the variable described by spec:
//
//	{
//	  "driver": "zarr",
//	  "kvstore": {"driver": "file", "path": "/data/seismic/velocity"},
//	  "attributes": {"dimension_names": ["inline", "crossline", "depth"]}
//	}
//
// When spec carries "attributes", each stored metadata member must appear
// there with the same value; extra members are ignored. A mismatch is an
// ErrInvalidArgument (as *MismatchError) and a stored member absent from
// "attributes" is an ErrNotFound.
//
// With WithOpenMode(ModeCreate) Open behaves as Create.
func Open(ctx context.Context, spec map[string]any, opts ...Option) (*Variable, error) {
	cfg, err := resolveOptions(ModeOpen, opts)
	if err != nil {
		return nil, err
	}
	return openVariable(ctx, spec, cfg)
}

// Create creates the array described by spec and writes its companion
// document. spec must carry "metadata" with a dtype and "attributes" with
// "dimension_names".
//
// Creating over an existing array fails with zarr.ErrAlreadyExists unless
// WithOpenMode(ModeCreateClean) is given.
func Create(ctx context.Context, spec map[string]any, opts ...Option) (*Variable, error) {
	cfg, err := resolveOptions(ModeCreate, opts)
	if err != nil {
		return nil, err
	}
	return openVariable(ctx, spec, cfg)
}

// OpenAsync runs Open on its own goroutine.
func OpenAsync(ctx context.Context, spec map[string]any, opts ...Option) *Future[*Variable] {
	cfg, err := resolveOptions(ModeOpen, opts)
	if err != nil {
		return Ready[*Variable](nil, err)
	}
	return Go(ctx, func(ctx context.Context) (*Variable, error) {
		return openVariable(ctx, spec, cfg)
	})
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Name returns the variable name, the last component of its path.
func (v *Variable) Name() string { return v.name }

// LongName returns the descriptive name, or "".
func (v *Variable) LongName() string { return v.longName }

// Dimensions returns the labeled index domain the variable addresses.
func (v *Variable) Dimensions() zarr.IndexDomain { return v.store.Domain() }

// NumSamples returns the number of addressed elements.
func (v *Variable) NumSamples() int64 { return v.store.Domain().NumElements() }

// DType returns the element type.
func (v *Variable) DType() zarr.DataType { return v.store.DType() }

// Store returns the underlying array handle.
func (v *Variable) Store() *zarr.Store { return v.store }

// ChunkShape returns the stored chunk extents.
func (v *Variable) ChunkShape() []int64 { return slices.Clone(v.store.Metadata().Chunks) }

// StoreShape returns the full extents of the stored array, regardless of
// slicing.
func (v *Variable) StoreShape() []int64 { return slices.Clone(v.store.Metadata().Shape) }

// Spec returns a spec that reopens this view of the variable, including
// its current metadata as "attributes".
func (v *Variable) Spec() map[string]any {
	out := v.store.Spec()
	out[KeyAttributes] = v.Metadata()
	return out
}

// Attributes returns the user attributes document.
func (v *Variable) Attributes() map[string]any {
	return v.attributes.Load().ToJSON()
}

// ReducedMetadata returns the metadata without user attributes.
func (v *Variable) ReducedMetadata() map[string]any { return jsondoc.Clone(v.metadata) }

// Metadata returns the full metadata: the reduced metadata with the current
// user attributes merged under "metadata".
func (v *Variable) Metadata() map[string]any {
	return v.metadataWith(v.attributes.Load())
}

func (v *Variable) metadataWith(attrs *stats.UserAttributes) map[string]any {
	out := jsondoc.Clone(v.metadata)
	if attrs.IsEmpty() {
		return out
	}
	nested, ok := jsondoc.Object(out[KeyMetadata])
	if !ok {
		nested = make(map[string]any)
		out[KeyMetadata] = nested
	}
	for k, val := range attrs.ToJSON() {
		nested[k] = val
	}
	return out
}

// WasUpdated reports whether the user attributes changed since they were
// last published.
func (v *Variable) WasUpdated() bool { return v.attributes.WasUpdated() }

func (v *Variable) String() string {
	return fmt.Sprintf("Variable %q %s %s", v.name, v.store.DType(), v.store.Domain())
}

// -----------------------------------------------------------------------------
// Slicing
// -----------------------------------------------------------------------------

// HasLabel reports whether id names a dimension of the variable.
func (v *Variable) HasLabel(id DimensionIdentifier) bool {
	_, ok := id.resolve(v.store.Domain())
	return ok
}

// SliceInRange clamps desc to the bounds of the dimension it names.
func (v *Variable) SliceInRange(desc SliceDescriptor) SliceDescriptor {
	return clampSlice(v.store.Domain(), desc)
}

// Slice returns the variable restricted to descs. Bounds outside the
// domain are clamped; descriptors naming absent dimensions are ignored.
// If no descriptor applies, v itself is returned.
//
// Every descriptor must have a step of 1 and, after clamping, a start
// below its stop; otherwise ErrInvalidArgument is returned.
func (v *Variable) Slice(descs ...SliceDescriptor) (*Variable, error) {
	iv, err := resolveSlices(v.store.Domain(), descs)
	if err != nil {
		return nil, err
	}
	if iv.empty() {
		return v, nil
	}
	store, err := v.store.HalfOpenInterval(iv.dims, iv.start, iv.stop)
	if err != nil {
		return nil, fmt.Errorf("mdio: %w: %w", ErrInvalidArgument, err)
	}
	out := *v
	out.store = store
	return &out, nil
}

// -----------------------------------------------------------------------------
// Data
// -----------------------------------------------------------------------------

// Read loads the addressed region.
func (v *Variable) Read(ctx context.Context) (*VariableData, error) {
	arr, err := v.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	return &VariableData{
		Name:     v.name,
		LongName: v.longName,
		Metadata: v.ReducedMetadata(),
		Data:     LabeledArray{Domain: v.store.Domain(), Data: arr},
	}, nil
}

// ReadAsync runs Read on its own goroutine.
func (v *Variable) ReadAsync(ctx context.Context) *Future[*VariableData] {
	return Go(ctx, v.Read)
}

// Write stores data into the addressed region. data must have the
// variable's dtype and the shape of its domain; otherwise nothing is
// written and ErrInvalidArgument is returned.
func (v *Variable) Write(ctx context.Context, data *VariableData) error {
	if err := v.checkWritable(data); err != nil {
		return err
	}
	if err := v.store.Write(ctx, data.Data.Data); err != nil {
		if errors.Is(err, zarr.ErrIncompatible) {
			return fmt.Errorf("mdio: %w: %w", ErrInvalidArgument, err)
		}
		return err
	}
	return nil
}

// WriteAsync runs Write on its own goroutine. Argument errors are reported
// without starting it.
func (v *Variable) WriteAsync(ctx context.Context, data *VariableData) *Future[struct{}] {
	if err := v.checkWritable(data); err != nil {
		return Ready(struct{}{}, err)
	}
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, v.Write(ctx, data)
	})
}

func (v *Variable) checkWritable(data *VariableData) error {
	if data == nil || data.Data.Data == nil {
		return fmt.Errorf("mdio: %w: no data to write", ErrInvalidArgument)
	}
	if got, want := data.DType(), v.store.DType(); got != want {
		return fmt.Errorf("mdio: %w: cannot write %s data into %s variable %q", ErrInvalidArgument, got, want, v.name)
	}
	if got, want := data.Data.Data.Shape(), v.store.Domain().Shape(); !slices.Equal(got, want) {
		return fmt.Errorf("mdio: %w: cannot write shape %v into domain %s of %q",
			ErrInvalidArgument, got, v.store.Domain(), v.name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Attributes
// -----------------------------------------------------------------------------

// UpdateAttributes replaces the user attributes with doc, whose "statsV1"
// histograms hold float values. The change is local until PublishMetadata.
func (v *Variable) UpdateAttributes(doc map[string]any) error {
	return v.UpdateAttributesAs(stats.Float32, doc)
}

// UpdateAttributesAs is UpdateAttributes with the histogram kind given
// explicitly. On error the current attributes are kept.
func (v *Variable) UpdateAttributesAs(kind stats.Kind, doc map[string]any) error {
	normalized, err := jsondoc.NormalizeObject(doc)
	if err != nil {
		return fmt.Errorf("mdio: update attributes of %q: %w: %w", v.name, ErrInvalidArgument, err)
	}
	attrs, err := stats.FromJSON(normalized, kind)
	if err != nil {
		return fmt.Errorf("mdio: update attributes of %q: %w: %w", v.name, ErrInvalidArgument, err)
	}
	version := v.attributes.Replace(attrs)
	v.logger.WithFields(logrus.Fields{
		"variable": v.name,
		"version":  version,
	}).Debug("attributes updated")
	return nil
}

// PublishMetadata writes the current metadata to the companion document.
// On success the attributes published are no longer reported by
// WasUpdated; updates made concurrently still are.
func (v *Variable) PublishMetadata(ctx context.Context) error {
	attrs, version := v.attributes.Snapshot()
	data, err := jsondoc.Marshal(ToZattrs(v.metadataWith(attrs)))
	if err != nil {
		return fmt.Errorf("mdio: publish %q: %w", v.name, err)
	}
	kv := v.store.KV()
	log := v.logger.WithFields(logrus.Fields{
		"variable": v.name,
		"driver":   kv.Driver(),
		"path":     kv.Path(),
		"action":   "publish",
	})
	if err := kv.Write(ctx, companionKey(kv.Spec()), data); err != nil {
		log.WithError(err).Warn("publish failed")
		return err
	}
	v.attributes.MarkCommitted(version)
	log.WithField("version", version).Debug("metadata published")
	return nil
}
