// Package confloader loads layered configuration with koanf.
//
// Sources, lowest to highest priority:
//
//  1. Defaults (a flat map of dotted keys)
//  2. YAML configuration file
//  3. Environment variables with the DIAGSAVE_ prefix
//
// Environment names are mapped onto known keys, so
// DIAGSAVE_STORAGE_DATA_DIR sets storage.data_dir rather than
// storage.data.dir.
//
// Watcher notifies callbacks when a watched file is written, which the
// server uses to re-apply reloadable settings.
package confloader
