// Package domain models house-price inflation data and the pure operations the
// map service runs over it.
//
// # Data Sources
//
// Two read-only tables feed the service. The region table holds one row per
// postcode area with its centroid and one column per calendar year:
//
//	region_id,lat,long,1995,1996,...,2024
//	SW1,51.497,-0.137,0.041,,0.087,...
//
// Year cells are fractions (0.041 = 4.1%) and may be blank or NaN. The property
// table holds one row per flat with its repeat-sale history:
//
//	postcode_area,postcode,street,flat,lat,long,inflation_rate,earliest_date,most_recent_date,most_recent_price
//	SW1,SW1A 1AA,MALL,FLAT 2,51.50,-0.14,0.052,03/05/1999,14/08/2019,725000
//
// Dates are day/month/year text and are parsed only when a drilldown needs them.
//
// # Period Rate
//
// A region's period rate is the mean of its present year cells in the selected
// range, times 100, rounded to two decimals (half to even). A region with no
// observations in range reports exactly 0.
//
// # Colour Scale
//
// Rates map onto a 256-step blue-to-red ramp over the fixed domain [0, 20]
// percent. Values outside the domain saturate at the endpoints.
//
// # Identities
//
// Every marker carries a structured [Identity]. Region markers render as the
// bare region id, or as "<region>_<generation>" once a recompute has assigned a
// generation. Property markers render as "<postcode>-<street>-<flat>", group
// markers as the postcode. The underscore is reserved for generations and the
// hyphen for property composites; [ParseRegionKey] only ever splits on the
// underscore.
package domain
