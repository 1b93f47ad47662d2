// Package validation checks configuration structs and chain catalogs.
//
// Struct tag validation (validator/v10) covers the config tree; field
// names in messages follow the mapstructure keys so they match the YAML
// the user wrote.
//
//	type SchedulerConfig struct {
//	    MaxParallel int `mapstructure:"max_parallel" validate:"gt=0"`
//	}
//	err := validation.Validate(cfg)
//
// The programmatic Validator collects field errors while walking data
// that has no struct form, such as a freshly parsed catalog:
//
//	v := validation.New()
//	v.Identifier("chains.demo", name)
//	err := v.Validate()
package validation
