// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import (
	"regexp"
	"strconv"
	"strings"

	"sbatchman/sbmerr"
)

// substituteToken matches {name}, {name.N}, {name[literal]}, {name[$other]}.
var substituteToken = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?:\.(\d+))?(?:\[\$?([A-Za-z_][A-Za-z0-9_]*)?\])?\}`)

// substitutionContext is everything substitute needs to resolve one token.
type substitutionContext struct {
	scalars  map[string]string   // resolved scalar value per variable in the current tuple
	lists    map[string][]string // full list value per List/DirExpand/FileExpand variable, for {var.N}
	maps     map[string]map[string]string
	deferred map[string]bool // ClusterMap variable names not yet resolvable (no cluster bound yet)
}

// substitute replaces every token in text per Phase VI. Tokens naming a
// variable in ctx.deferred are left untouched, to be resolved once a
// candidate cluster is known (Phase VII).
func substitute(text string, ctx substitutionContext) (string, error) {
	var firstErr error
	result := substituteToken.ReplaceAllStringFunc(text, func(tok string) string {
		m := substituteToken.FindStringSubmatch(tok)
		name, idxStr, keyRef := m[1], m[2], m[3]

		if ctx.deferred[name] {
			return tok
		}

		switch {
		case idxStr != "":
			idx, _ := strconv.Atoi(idxStr)
			list, ok := ctx.lists[name]
			if !ok || idx < 0 || idx >= len(list) {
				if firstErr == nil {
					firstErr = sbmerr.New(sbmerr.ConfigKey, "tuple index %d out of range for variable %q", idx, name)
				}
				return tok
			}
			return list[idx]

		case keyRef != "" && strings.Contains(tok, "[$"):
			// {map[$var]}: key is the current scalar value of $var.
			key, ok := ctx.scalars[keyRef]
			if !ok {
				if firstErr == nil {
					firstErr = sbmerr.New(sbmerr.ConfigKey, "dynamic map key variable %q is unresolved", keyRef)
				}
				return tok
			}
			m, ok := ctx.maps[name]
			if !ok {
				if firstErr == nil {
					firstErr = sbmerr.New(sbmerr.ConfigKey, "%q is not a map variable", name)
				}
				return tok
			}
			val, ok := m[key]
			if !ok {
				if firstErr == nil {
					firstErr = sbmerr.New(sbmerr.ConfigKey, "key %q not found in map %q", key, name)
				}
				return tok
			}
			return val

		case keyRef != "":
			// {map[literal]}: the literal key was captured as keyRef.
			m, ok := ctx.maps[name]
			if !ok {
				if firstErr == nil {
					firstErr = sbmerr.New(sbmerr.ConfigKey, "%q is not a map variable", name)
				}
				return tok
			}
			val, ok := m[keyRef]
			if !ok {
				if firstErr == nil {
					firstErr = sbmerr.New(sbmerr.ConfigKey, "key %q not found in map %q", keyRef, name)
				}
				return tok
			}
			return val

		default:
			if val, ok := ctx.scalars[name]; ok {
				return val
			}
			if list, ok := ctx.lists[name]; ok {
				return strings.Join(list, " ")
			}
			if firstErr == nil {
				firstErr = sbmerr.New(sbmerr.ConfigKey, "variable %q is unresolved", name)
			}
			return tok
		}
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// substituteClusterMapTokens resolves any {name} token left deferred by an
// earlier substitute() pass, now that clusterName is known (Phase VII).
func substituteClusterMapTokens(text string, clusterMaps map[string]Variable, clusterName string) string {
	return substituteToken.ReplaceAllStringFunc(text, func(tok string) string {
		m := substituteToken.FindStringSubmatch(tok)
		name := m[1]
		v, ok := clusterMaps[name]
		if !ok {
			return tok
		}
		if val, ok := v.ClusterMapPerCluster[clusterName]; ok {
			return val
		}
		return v.ClusterMapDefault
	})
}
