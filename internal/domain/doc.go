// Package domain holds the alert model and the parsers that turn raw NWS
// text products into it.
//
// Products arrive as plain text in a handful of interlocking conventions:
//
//   - A WMO heading (WUUS53 KCLE 241930) and AWIPS PIL identify the product
//     stream and issuing office.
//   - A P-VTEC string (/O.NEW.KCLE.SV.W.0123.250824T1930Z-250824T2030Z/)
//     carries the machine-readable event identity, action, and valid window.
//     Watches share an SPC-assigned tracking number nationally; warnings
//     scope theirs to the office.
//   - A UGC block (OHC001-003>005-241945-) lists covered counties (C) or
//     forecast zones (Z) with range shorthand and a DDHHMM purge time.
//   - LAT...LON and TIME...MOT...LOC tags describe the warning polygon (in
//     hundredths of a degree, longitude positive west) and storm motion.
//   - Impact-based warning tags (HAIL...1.75IN, TORNADO...RADAR INDICATED,
//     WIND DAMAGE THREAT...CONSIDERABLE) state the hazard magnitudes.
//
// Everything here is a pure function over the product text plus the package
// clock; transport, storage, and fan-out live elsewhere.
package domain
