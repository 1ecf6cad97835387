// Package harvest defines the shared types, interfaces and error taxonomy of
// the product harvesting engine.
//
// A run moves WorkItems through a queue to a fixed pool of workers. Each
// worker owns one Session for its lifetime, turns items into RawRecords,
// normalizes them into ProductRecords and reports an Entry per item. The
// aggregate RunResult holds exactly one Entry for every item of the run.
package harvest
