// Package crocolake provides a uniform loading interface over the CrocoLake
// oceanographic observation databases: collections of heterogeneous source
// datasets (Argo floats, GLODAP, Spray gliders, ...) merged into partitioned
// Parquet datasets on disk or on S3-compatible object storage.
//
// A Loader selects a database variant (PHY or BGC), a subset of variables, a
// subset of sources, and row-level value filters, then materializes a
// lazily-evaluated tabular view:
//
//	loader, err := crocolake.NewLoader(ctx,
//	    crocolake.WithDatabaseType(crocolake.PHY),
//	    crocolake.WithRootPath("/data/crocolake"),
//	    crocolake.WithVariables("LATITUDE", "LONGITUDE", "TEMP"),
//	)
//
//	err = loader.SetFilters(filter.Or(
//	    filter.And(filter.Gt("LATITUDE", 5.0), filter.Lt("LATITUDE", 30.0)),
//	))
//
//	ds, err := loader.GetDataframe(ctx)
//	tbl, err := ds.Collect(ctx)   // materializes an arrow.Table
//
// No row data is read before Collect: GetDataframe only resolves source
// directories and schemas, pushing column projection and filter predicates
// down to the Parquet reader so unselected columns stay on disk and row
// groups whose statistics cannot match are skipped.
//
// # Validation
//
// All parameter validation is eager. Unknown database types, missing root
// paths, variables absent from the catalog, and sources absent from the
// registry or from disk fail at construction or at SetFilters time, before
// any I/O-heavy work. Failures during materialization itself come from the
// underlying engine and are reported verbatim.
//
// # Concurrency
//
// A Loader is a value holder, safe for concurrent derivation as long as
// SetFilters is not called concurrently with GetDataframe on the same
// instance. Independent Loader instances share nothing.
package crocolake
