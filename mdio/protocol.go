package mdio

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/mdio/internal/jsondoc"
	"github.com/pithecene-io/mdio/kvstore"
	"github.com/pithecene-io/mdio/stats"
	"github.com/pithecene-io/mdio/zarr"
)

// openVariable dispatches to the create or open path by cfg.mode.
func openVariable(ctx context.Context, spec map[string]any, cfg *config) (*Variable, error) {
	if cfg.mode.IsCreate() {
		storeSpec, meta, err := SplitSpec(spec)
		if err != nil {
			return nil, err
		}
		return createVariable(ctx, storeSpec, meta, cfg)
	}
	return openExisting(ctx, spec, cfg)
}

// -----------------------------------------------------------------------------
// Create
// -----------------------------------------------------------------------------

// createVariable creates the array described by storeSpec and writes the
// companion document for meta.
//
// The array is created first. Labeling the store and writing the companion
// document then run concurrently; the variable is returned only if both
// succeed. A failed companion write leaves the created array in place.
func createVariable(ctx context.Context, storeSpec, meta map[string]any, cfg *config) (*Variable, error) {
	arrayMeta, ok := jsondoc.Object(storeSpec[KeyMetadata])
	if !ok {
		return nil, fmt.Errorf("mdio: %w: variable spec requires %s", ErrInvalidArgument, KeyMetadata)
	}
	rawDType, ok := arrayMeta[KeyDType]
	if !ok {
		return nil, fmt.Errorf("mdio: %w: variable metadata requires %s", ErrInvalidArgument, KeyDType)
	}
	dtype, err := zarr.ParseDType(rawDType)
	if err != nil {
		return nil, fmt.Errorf("mdio: %w: %w", ErrInvalidArgument, err)
	}
	kvSpec, err := kvstore.ParseSpec(storeSpec[KeyKvstore])
	if err != nil {
		return nil, fmt.Errorf("mdio: %w: %w", ErrInvalidArgument, err)
	}
	_, pinned := storeSpec[KeyField]
	fieldName, _ := jsondoc.String(storeSpec[KeyField])
	if shape, ok := jsondoc.Ints(arrayMeta[KeyShape]); ok {
		rank := len(shape)
		if f, ok := dtype.Field(fieldName); dtype.Structured && (!pinned || ok && f.Type == zarr.Byte) {
			rank++
		}
		if _, err := dimensionNames(meta, rank); err != nil {
			return nil, err
		}
	}

	log := cfg.logger.WithFields(logrus.Fields{
		"variable": meta[KeyVariableName],
		"driver":   kvSpec.Driver,
		"path":     kvSpec.Path,
	})

	// A structured array is created through its first field; the .zarray
	// document does not depend on the field.
	reopen := dtype.Structured && !pinned
	createSpec := storeSpec
	if reopen {
		createSpec = jsondoc.Clone(storeSpec)
		createSpec[KeyField] = dtype.Fields[0].Name
	}

	log.WithField("action", cfg.mode.String()).Debug("creating array")
	store, err := zarr.Open(ctx, createSpec, cfg.opener, cfg.mode)
	if err != nil {
		return nil, err
	}
	if reopen {
		// Only the resolved spec is forwarded to the reopen.
		full := jsondoc.Clone(storeSpec)
		delete(full, KeyMetadata)
		if store, err = zarr.Open(ctx, full, cfg.opener, ModeOpen); err != nil {
			return nil, err
		}
	}

	var v *Variable
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		labeled, err := labelStore(store, meta)
		if err != nil {
			return err
		}
		v, err = fromMetadata(meta, labeled, cfg.logger)
		return err
	})
	g.Go(func() error {
		data, err := jsondoc.Marshal(ToZattrs(meta))
		if err != nil {
			return err
		}
		return store.KV().Write(gctx, companionKey(kvSpec), data)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("create failed after the array was written; the array is not rolled back")
		return nil, err
	}
	log.Debug("created variable")
	return v, nil
}

// -----------------------------------------------------------------------------
// Open
// -----------------------------------------------------------------------------

// openExisting opens the array and reads its companion document
// concurrently, then labels the array and, if spec carries "attributes",
// validates them against the stored metadata.
func openExisting(ctx context.Context, spec map[string]any, cfg *config) (*Variable, error) {
	storeSpec, err := jsondoc.NormalizeObject(spec)
	if err != nil {
		return nil, fmt.Errorf("mdio: %w: %v", ErrInvalidArgument, err)
	}
	name, err := variableName(storeSpec)
	if err != nil {
		return nil, err
	}
	kvSpec, _ := kvstore.ParseSpec(storeSpec[KeyKvstore])

	supplied, validate := storeSpec[KeyAttributes]
	delete(storeSpec, KeyAttributes)
	if _, pinned := storeSpec[KeyField]; !pinned {
		delete(storeSpec, KeyMetadata)
	}

	log := cfg.logger.WithFields(logrus.Fields{
		"variable": name,
		"driver":   kvSpec.Driver,
		"path":     kvSpec.Path,
	})
	log.WithField("action", "open").Debug("opening variable")

	var (
		store *zarr.Store
		doc   map[string]any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		store, err = zarr.Open(gctx, storeSpec, cfg.opener, ModeOpen)
		return err
	})
	g.Go(func() error {
		var err error
		doc, err = readCompanion(gctx, cfg.opener, kvSpec)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	canonical := FromZattrs(doc, name)
	labeled, err := labelStore(store, canonical)
	if err != nil {
		return nil, err
	}

	if validate {
		want, ok := jsondoc.Object(supplied)
		if !ok {
			return nil, fmt.Errorf("mdio: %w: %q must be an object", ErrInvalidArgument, KeyAttributes)
		}
		if err := validateMetadata(canonical, want, cfg.fullDiagnostics); err != nil {
			return nil, fmt.Errorf("mdio: open %s: %w", kvSpec, err)
		}
	}
	return fromMetadata(canonical, labeled, cfg.logger)
}

func readCompanion(ctx context.Context, opener *kvstore.Opener, spec kvstore.Spec) (map[string]any, error) {
	kv, err := opener.Open(ctx, spec)
	if err != nil {
		return nil, err
	}
	key := companionKey(spec)
	data, err := kv.Read(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, fmt.Errorf("mdio: %w: %w", ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	doc, err := jsondoc.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("mdio: %w: %s in %s: %v", ErrInvalidArgument, key, spec, err)
	}
	return doc, nil
}

// validateMetadata checks that every member of the stored metadata is
// present with the same value in the supplied attributes. Both sides are
// compared with their "metadata" members flattened.
func validateMetadata(canonical, supplied map[string]any, full bool) error {
	stored := flattenMetadata(jsondoc.Clone(canonical))
	delete(stored, KeyVariableName)
	want := flattenMetadata(jsondoc.Clone(supplied))

	mode := jsondoc.FailFast
	if full {
		mode = jsondoc.CollectAll
	}
	var errs []error
	for _, m := range jsondoc.Diff(stored, want, mode) {
		switch m.Kind {
		case jsondoc.Missing:
			errs = append(errs, fmt.Errorf("%w: field not found in JSON: %s", ErrNotFound, m.PathString()))
		default:
			errs = append(errs, &MismatchError{Path: m.Path, Expected: m.Expected, Actual: m.Actual})
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Variable construction
// -----------------------------------------------------------------------------

// labelStore applies meta's dimension names to the leading dimensions of
// store.
func labelStore(store *zarr.Store, meta map[string]any) (*zarr.Store, error) {
	names, err := dimensionNames(meta, store.Domain().Rank())
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		if store, err = store.WithLabel(i, name); err != nil {
			return nil, fmt.Errorf("mdio: %w: %w", ErrInvalidArgument, err)
		}
	}
	return store, nil
}

// dimensionNames returns meta's dimension names, checked against an array
// of the given rank.
func dimensionNames(meta map[string]any, rank int) ([]string, error) {
	raw, ok := meta[KeyDimensionNames]
	if !ok {
		return nil, fmt.Errorf("mdio: %w: field not found in JSON: %s", ErrNotFound, KeyDimensionNames)
	}
	names, ok := jsondoc.Strings(raw)
	if !ok {
		return nil, fmt.Errorf("mdio: %w: %s must be a list of strings", ErrInvalidArgument, KeyDimensionNames)
	}
	if len(names) > rank {
		return nil, fmt.Errorf("mdio: %w: %d dimension names for rank %d array",
			ErrInvalidArgument, len(names), rank)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("mdio: %w: duplicate dimension name %q", ErrInvalidArgument, name)
		}
		seen[name] = true
	}
	return names, nil
}

// fromMetadata builds a Variable from canonical metadata. User attributes
// move into a fresh holder and are removed from the reduced metadata.
func fromMetadata(meta map[string]any, store *zarr.Store, logger logrus.FieldLogger) (*Variable, error) {
	name, ok := jsondoc.String(meta[KeyVariableName])
	if !ok {
		return nil, fmt.Errorf("mdio: %w: could not find variable's name", ErrNotFound)
	}
	attrs, err := stats.FromVariableJSON(meta)
	if err != nil {
		return nil, fmt.Errorf("mdio: %w: %w", ErrInvalidArgument, err)
	}

	reduced := jsondoc.Clone(meta)
	delete(reduced, KeyVariableName)
	delete(reduced, stats.KeyAttributes)
	delete(reduced, stats.KeyStats)
	longName, _ := jsondoc.String(reduced[KeyLongName])
	if longName == "" {
		delete(reduced, KeyLongName)
	}
	if nested, ok := jsondoc.Object(reduced[KeyMetadata]); ok {
		delete(nested, stats.KeyAttributes)
		delete(nested, stats.KeyStats)
	}

	return &Variable{
		name:       name,
		longName:   longName,
		metadata:   reduced,
		store:      store,
		attributes: NewAttributeHolder(attrs),
		logger:     logger,
	}, nil
}
