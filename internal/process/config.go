// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
)

// flags that never belong in a config file
var excludedFlags = map[string]bool{
	"config-dir": true,
	"defaults":   true,
	"help":       true,
	"version":    true,
}

// SaveConfigWithAllDefaults writes a commented config.yaml containing every
// flag of the command at its default, with overrides applied on top.
func SaveConfigWithAllDefaults(cmd *cobra.Command, outfile string, overrides map[string]any) error {
	type entry struct {
		name  string
		usage string
		value string
	}
	var entries []entry

	collect := func(f *pflag.Flag) {
		if excludedFlags[f.Name] || strings.HasPrefix(f.Name, "log.") {
			return
		}
		value := f.Value.String()
		if override, ok := overrides[f.Name]; ok {
			value = fmt.Sprint(override)
		}
		entries = append(entries, entry{name: f.Name, usage: f.Usage, value: value})
	}
	cmd.Flags().VisitAll(collect)

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var b strings.Builder
	for _, e := range entries {
		if e.usage != "" {
			fmt.Fprintf(&b, "# %s\n", e.usage)
		}
		fmt.Fprintf(&b, "%s: %s\n\n", e.name, yamlValue(e.value))
	}

	return errs.Wrap(atomicWrite(outfile, 0600, []byte(b.String())))
}

// yamlValue formats a flag value so that viper reads it back unchanged.
func yamlValue(v string) string {
	switch v {
	case "", "true", "false":
		if v == "" {
			return `""`
		}
		return v
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return v
	}
	if strings.ContainsAny(v, ":#{}[]&*!|>'\"%@`, ") {
		return fmt.Sprintf("%q", v)
	}
	return v
}

// atomicWrite writes data to outfile through a temporary file and rename.
func atomicWrite(outfile string, mode os.FileMode, data []byte) (err error) {
	fh, err := os.CreateTemp(filepath.Dir(outfile), filepath.Base(outfile))
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, fh.Close(), os.Remove(fh.Name()))
		}
	}()
	if _, err := fh.Write(data); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Sync(); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Chmod(mode); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Close(); err != nil {
		return errs.Wrap(err)
	}
	return errs.Wrap(os.Rename(fh.Name(), outfile))
}
