// Package domain models daily per-city pollen readings and the snapshots that
// feed the generated China pollen maps.
//
// # Data Source
//
// Readings originate from the China Weather Network pollen pages, one row per
// monitored city per calendar day. The upstream scraper writes them as CSV
// (Chinese headers 日期, 城市, 花粉等级, 等级描述) or as JSON rows with the
// site's own field names (addTime, city, level, levelMsg).
//
// # Level Scale
//
// Levels are published as category text. They are mapped onto a fixed integer
// scale so the rendering payload can colour points positionally:
//
//	暂无 0 | 很低 1 | 低 2 | 较低 3 | 中 4 | 偏高 5 | 高 6 | 较高 7 | 很高 8 | 极高 9
//
// Numeric text 0–10 is accepted as-is. Anything else (unknown text, an empty
// cell, an out-of-range number) becomes [LevelNoData] and the row is kept.
//
// # Conflict Policies
//
// Two tie-breaks coexist on purpose:
//
//   - [BuildSnapshots] keeps the last row for a (city, date) pair. The scraper
//     appends re-fetched corrections after the original row.
//   - The repair extractor keeps the first entry for a city name. Damaged
//     documents are usually truncated at the end, so the earliest data is the
//     most trustworthy.
//
// # Cities
//
// Free-text city names are resolved through a [CityResolver], an explicitly
// constructed read-only table (see package geo). Rows that do not resolve are
// dropped from their snapshot and reported as warnings; their date still
// appears in the index.
package domain
