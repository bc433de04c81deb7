// Package diagnostics runs the post-estimation checks on a fitted OLS model:
// residual tests (Durbin-Watson, Breusch-Godfrey, Breusch-Pagan, White,
// Jarque-Bera) and structural break tests (OLS-residual CUSUM and one Chow
// test per break date).
//
// Results are flat ordered name -> value maps. A test that cannot run stores
// NaN under its key; a model that cannot be tested at all yields an empty map.
package diagnostics
