// Package cli implements the chainkit command line.
//
//	chainkit execute-chain DocumentationUpdate --context '{"ticket":"DOC-1"}'
//	chainkit execute-module Module_Lint
//	chainkit monitor-performance --iteration it-1 --metrics '{"inp_ms":180}' --check-compliance
//	chainkit monitor-performance --generate-dashboard
//	chainkit visualize-context --runtime-context run.json --format html
//	chainkit chains
//	chainkit version
//
// Exit codes follow errors.ExitCodeFor: 1 for a failed or cancelled
// chain, 2 for an unknown chain or task, 3 for invalid configuration and
// 4 for a persistence failure. Budget violations are advisory and exit 0.
package cli
