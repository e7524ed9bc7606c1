package mapper

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/jacentio/docmap/metrics"
	"github.com/jacentio/docmap/store"
)

// OnValidate overrides the kind's validate hook for this document only.
func (d *Document) OnValidate(fn ValidateFunc) { d.hooks.validate = fn }

// OnBeforeSave overrides the kind's pre-save hook for this document only.
func (d *Document) OnBeforeSave(fn BeforeFunc) { d.hooks.beforeSave = fn }

// OnAfterSave overrides the kind's post-save hook for this document only.
func (d *Document) OnAfterSave(fn AfterFunc) { d.hooks.afterSave = fn }

// OnBeforeDelete overrides the kind's pre-delete hook for this document only.
func (d *Document) OnBeforeDelete(fn BeforeFunc) { d.hooks.beforeDelete = fn }

// OnAfterDelete overrides the kind's post-delete hook for this document only.
func (d *Document) OnAfterDelete(fn AfterFunc) { d.hooks.afterDelete = fn }

// Save validates, allocates auto-increment values, runs the pre-save hook,
// upserts the document and runs the post-save hook.
//
// A failed validation returns *InvalidDocumentError without touching the
// store. A pre-save veto returns false with a nil error.
func (d *Document) Save(ctx context.Context) (bool, error) {
	if d.mgr == nil {
		return false, ErrUnbound
	}
	return d.save(ctx)
}

// Delete runs the pre-delete hook, removes the document and runs the
// post-delete hook. A veto returns false with a nil error.
func (d *Document) Delete(ctx context.Context) (bool, error) {
	if d.mgr == nil {
		return false, ErrUnbound
	}
	return d.delete(ctx)
}

func (d *Document) save(ctx context.Context) (bool, error) {
	m := d.mgr
	coll := d.kind.collection
	log := m.logger.With().Str("collection", coll).Str("id", d.ID()).Logger()

	if errs := d.Validate(); len(errs) > 0 {
		m.metrics.Save(coll, metrics.OutcomeInvalid)
		log.Debug().Int("errors", len(errs)).Msg("save rejected: invalid document")
		return false, &InvalidDocumentError{Collection: coll, Errors: errs}
	}

	for _, f := range d.kind.fields {
		if f.Variant != AutoIncrementVariant || !falsy(d.values[f.Name]) {
			continue
		}
		v, err := m.NextSequenceValue(ctx, f.Sequence)
		if err != nil {
			m.metrics.Save(coll, metrics.OutcomeError)
			return false, fmt.Errorf("allocate %s: %w", f.Name, err)
		}
		d.put(f.Name, v)
		log.Debug().Str("field", f.Name).Int64("value", v).Msg("allocated sequence value")
	}

	if fn := d.beforeSave(); fn != nil && !fn(ctx, d) {
		m.metrics.Save(coll, metrics.OutcomeVetoed)
		log.Debug().Msg("save vetoed")
		return false, nil
	}

	id, err := m.upsert(ctx, coll, d.Record())
	if err != nil {
		m.metrics.Save(coll, metrics.OutcomeError)
		log.Error().Err(err).Msg("save failed")
		return false, fmt.Errorf("save %s: %w", coll, err)
	}
	d.put(store.IDField, id)
	m.metrics.Save(coll, metrics.OutcomeSaved)
	log.Debug().Str("id", id).Msg("document saved")

	if fn := d.afterSave(); fn != nil {
		fn(ctx, d)
	}
	return true, nil
}

func (d *Document) delete(ctx context.Context) (bool, error) {
	m := d.mgr
	coll := d.kind.collection

	if fn := d.beforeDelete(); fn != nil && !fn(ctx, d) {
		m.metrics.Delete(coll, metrics.OutcomeVetoed)
		m.logger.Debug().Str("collection", coll).Str("id", d.ID()).Msg("delete vetoed")
		return false, nil
	}

	if err := m.remove(ctx, d); err != nil {
		m.metrics.Delete(coll, metrics.OutcomeError)
		return false, err
	}
	m.metrics.Delete(coll, metrics.OutcomeDeleted)

	if fn := d.afterDelete(); fn != nil {
		fn(ctx, d)
	}
	return true, nil
}

func (d *Document) beforeSave() BeforeFunc {
	if d.hooks.beforeSave != nil {
		return d.hooks.beforeSave
	}
	return d.kind.hooks.beforeSave
}

func (d *Document) afterSave() AfterFunc {
	if d.hooks.afterSave != nil {
		return d.hooks.afterSave
	}
	return d.kind.hooks.afterSave
}

func (d *Document) beforeDelete() BeforeFunc {
	if d.hooks.beforeDelete != nil {
		return d.hooks.beforeDelete
	}
	return d.kind.hooks.beforeDelete
}

func (d *Document) afterDelete() AfterFunc {
	if d.hooks.afterDelete != nil {
		return d.hooks.afterDelete
	}
	return d.kind.hooks.afterDelete
}

// falsy reports whether an auto-increment value still needs allocation:
// absent, Unset, zero or empty.
func falsy(v any) bool {
	if absent(v) {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	n, err := cast.ToFloat64E(v)
	return err == nil && n == 0
}
