// Package config loads and validates the application configuration.
//
// # Configuration Sources
//
// Values are applied in this order, later sources overriding earlier ones:
//
//  1. Defaults (Default and the `default` struct tags)
//  2. Environment variables with the ETHVAL_ prefix
//  3. The YAML configuration file
//
// Environment variables follow the section layout:
//
//	ETHVAL_SERVER_PORT=8080
//	ETHVAL_LOGGING_LEVEL=debug
//	ETHVAL_ANALYSIS_WINSORIZE_QUANTILE=0.95
//	ETHVAL_ANALYSIS_BOUNDS_REPLICATIONS=2000
//
// Model options (break dates, VECM, ARDL and OOS settings) are lists and
// nested records and can only be set in the YAML file:
//
//	analysis:
//	  breaks:
//	    - name: break_1
//	      date: 2017-11-01
//	  vecm:
//	    endog: [price_usd, active_addr]
//	    exog: [nasdaq]
//	    max_lag: 6
//	    coint_rank: 1
//	    det_order: 0
//
// The file is decoded strictly: an unknown key is an error rather than being
// ignored. After loading, struct tags are checked with validator/v10 and
// Validate applies the cross-field rules.
package config
