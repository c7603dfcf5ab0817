// Package source resolves file resource declarations into version-bound
// content locators and opens the bytes behind them.
//
// A declaration compiled by keel carries metadata that binds every entry
// to a blob in the content store, so the bytes a locator yields are the
// ones captured when its catalog was compiled, no matter what the module
// tree holds today. A declaration without metadata (a catalog supplied
// directly for a local apply) resolves against the live filesystem.
//
// Supported source forms:
//
//	keel:///content/<hex>          a content store blob
//	keel:///modules/<mod>/<path>   <module_path>/<mod>/files/<path>
//	file:///abs/path               a local file or directory
//	/abs/path                      same as file://
package source
