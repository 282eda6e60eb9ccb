// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package transport

// ResolvePermissionOption maps a respond body's accept/option pair onto the
// canonical permission picker option: option takes precedence when set;
// otherwise accept=true picks 1 (allow), accept=false or unset picks 3
// (decline). Grounded on original_source's resolve_permission_option.
func ResolvePermissionOption(accept *bool, option *uint32) uint32 {
	if option != nil {
		return *option
	}
	if accept != nil && *accept {
		return 1
	}
	return 3
}

// ResolvePlanOption maps a respond body's accept/option pair onto the
// canonical plan picker option: option takes precedence when set;
// otherwise accept=true picks 2 (auto-accept), accept=false or unset picks 4
// (reject, optionally with feedback). Grounded on original_source's
// resolve_plan_option.
func ResolvePlanOption(accept *bool, option *uint32) uint32 {
	if option != nil {
		return *option
	}
	if accept != nil && *accept {
		return 2
	}
	return 4
}
