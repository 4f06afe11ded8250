package runtime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/cosmwasgo/wasmvm/types"
)

// requiredExports must be present in every contract. Without the allocator
// pair the host cannot move data into the sandbox at all.
var requiredExports = []string{
	"init",
	"execute",
	"allocate",
	"deallocate",
}

// entryPointExports are the exports the dispatcher knows how to call.
// The capability set of a contract is the subset of these it exports,
// resolved once at store time.
var entryPointExports = []string{
	"init",
	"execute",
	"query",
	"migrate",
	"sudo",
	"reply",
	"ibc_channel_open",
	"ibc_channel_connect",
	"ibc_channel_close",
	"ibc_packet_receive",
	"ibc_packet_ack",
	"ibc_packet_timeout",
	"ibc_encode_acknowledgement",
}

// ibcCoreExports must all be present for a contract to count as IBC-enabled.
var ibcCoreExports = []string{
	"ibc_channel_open",
	"ibc_channel_connect",
	"ibc_channel_close",
	"ibc_packet_receive",
	"ibc_packet_ack",
	"ibc_packet_timeout",
}

// supportedImports is every function the host module provides. A contract
// importing anything else from "env" would trap at instantiation on some
// nodes and not others; rejecting it at store time keeps behavior uniform.
var supportedImports = map[string]struct{}{
	"db_read":              {},
	"db_write":             {},
	"db_remove":            {},
	"db_scan":              {},
	"db_next":              {},
	"canonicalize_address": {},
	"humanize_address":     {},
	"query_chain":          {},
	"debug":                {},
	"abort":                {},
}

const hostModuleName = "env"

// ValidateModule performs the static checks applied before code is accepted
// into the cache: exactly one memory, all required exports present, and no
// imports outside the host module surface.
func ValidateModule(compiled wazero.CompiledModule) error {
	if len(compiled.ExportedMemories()) != 1 {
		return types.ValidationError{
			Msg: fmt.Sprintf("contract must export exactly one memory, found %d", len(compiled.ExportedMemories())),
		}
	}
	if len(compiled.ImportedMemories()) != 0 {
		return types.ValidationError{Msg: "contract must not import memory"}
	}

	exports := compiled.ExportedFunctions()
	for _, name := range requiredExports {
		if _, ok := exports[name]; !ok {
			return types.ValidationError{Msg: fmt.Sprintf("contract missing required export %q", name)}
		}
	}

	for _, imp := range compiled.ImportedFunctions() {
		module, name, _ := imp.Import()
		if module != hostModuleName {
			return types.ValidationError{
				Msg: fmt.Sprintf("contract imports from unsupported module %q", module),
			}
		}
		if _, ok := supportedImports[name]; !ok {
			return types.ValidationError{
				Msg: fmt.Sprintf("contract imports unsupported function %q", strings.Join([]string{module, name}, ".")),
			}
		}
	}
	return nil
}

// AnalyzeModule reports which entry points the compiled contract exports.
func AnalyzeModule(compiled wazero.CompiledModule) types.AnalysisReport {
	exports := compiled.ExportedFunctions()

	var entrypoints []string
	for _, name := range entryPointExports {
		if _, ok := exports[name]; ok {
			entrypoints = append(entrypoints, name)
		}
	}
	sort.Strings(entrypoints)

	hasIBC := true
	for _, name := range ibcCoreExports {
		if _, ok := exports[name]; !ok {
			hasIBC = false
			break
		}
	}

	return types.AnalysisReport{
		HasIBCEntryPoints: hasIBC,
		Entrypoints:       entrypoints,
	}
}
