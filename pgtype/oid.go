package pgtype

// OID is a PostgreSQL object identifier -- for this package, always a
// built-in or runtime-discovered data type OID.
type OID uint32

// Built-in scalar and container OIDs from spec.md §4.2 (authoritative list).
const (
	OIDBool        OID = 16
	OIDBytea       OID = 17
	OIDChar        OID = 18
	OIDName        OID = 19
	OIDInt8        OID = 20
	OIDInt2        OID = 21
	OIDInt4        OID = 23
	OIDText        OID = 25
	OIDOID         OID = 26
	OIDXID         OID = 28
	OIDJSON        OID = 114
	OIDPoint       OID = 600
	OIDLseg        OID = 601
	OIDPath        OID = 602
	OIDBox         OID = 603
	OIDPolygon     OID = 604
	OIDLine        OID = 628
	OIDFloat4      OID = 700
	OIDFloat8      OID = 701
	OIDCircle      OID = 718
	OIDMoney       OID = 790
	OIDInet        OID = 869
	OIDBPChar      OID = 1042
	OIDVarchar     OID = 1043
	OIDDate        OID = 1082
	OIDTime        OID = 1083
	OIDTimestamp   OID = 1114
	OIDTimestamptz OID = 1184
	OIDInterval    OID = 1186
	OIDTimetz      OID = 1266
	OIDNumeric     OID = 1700
	OIDUUID        OID = 2950
	OIDRecord      OID = 2249
	OIDPgLSN       OID = 3220
	OIDTSVector    OID = 3614
	OIDJSONB       OID = 3802

	OIDInt4Range OID = 3904
	OIDNumRange  OID = 3906
	OIDTSRange   OID = 3908
	OIDTSTZRange OID = 3910
	OIDDateRange OID = 3912
	OIDInt8Range OID = 3926
)

// Array OIDs, paired with their element OID in arrayOIDOf below.
const (
	OIDBoolArray        OID = 1000
	OIDByteaArray       OID = 1001
	OIDCharArray        OID = 1002
	OIDNameArray        OID = 1003
	OIDInt2Array        OID = 1005
	OIDInt4Array        OID = 1007
	OIDTextArray        OID = 1009
	OIDVarcharArray     OID = 1015
	OIDInt8Array        OID = 1016
	OIDPointArray       OID = 1017
	OIDLsegArray        OID = 1018
	OIDPathArray        OID = 1019
	OIDBoxArray         OID = 1020
	OIDFloat4Array      OID = 1021
	OIDFloat8Array      OID = 1022
	OIDPolygonArray     OID = 1027
	OIDOIDArray         OID = 1028
	OIDLineArray        OID = 629
	OIDCircleArray      OID = 719
	OIDMoneyArray       OID = 791
	OIDBPCharArray      OID = 1014
	OIDDateArray        OID = 1182
	OIDTimeArray        OID = 1183
	OIDTimestampArray   OID = 1115
	OIDTimestamptzArray OID = 1185
	OIDIntervalArray    OID = 1187
	OIDTimetzArray      OID = 1270
	OIDNumericArray     OID = 1231
	OIDUUIDArray        OID = 2951
	OIDJSONArray        OID = 199
	OIDJSONBArray       OID = 3807
	OIDInetArray        OID = 1041
	OIDXIDArray         OID = 1011

	OIDInt4RangeArray OID = 3905
	OIDNumRangeArray  OID = 3907
	OIDTSRangeArray   OID = 3909
	OIDTSTZRangeArray OID = 3911
	OIDDateRangeArray OID = 3913
	OIDInt8RangeArray OID = 3927
)

// arrayElemOID maps an array OID to the element OID it carries.
var arrayElemOID = map[OID]OID{
	OIDBoolArray:        OIDBool,
	OIDByteaArray:       OIDBytea,
	OIDCharArray:        OIDChar,
	OIDNameArray:        OIDName,
	OIDInt2Array:        OIDInt2,
	OIDInt4Array:        OIDInt4,
	OIDTextArray:        OIDText,
	OIDVarcharArray:     OIDVarchar,
	OIDInt8Array:        OIDInt8,
	OIDPointArray:       OIDPoint,
	OIDLsegArray:        OIDLseg,
	OIDPathArray:        OIDPath,
	OIDBoxArray:         OIDBox,
	OIDFloat4Array:      OIDFloat4,
	OIDFloat8Array:      OIDFloat8,
	OIDPolygonArray:     OIDPolygon,
	OIDOIDArray:         OIDOID,
	OIDLineArray:        OIDLine,
	OIDCircleArray:      OIDCircle,
	OIDMoneyArray:       OIDMoney,
	OIDBPCharArray:      OIDBPChar,
	OIDDateArray:        OIDDate,
	OIDTimeArray:        OIDTime,
	OIDTimestampArray:   OIDTimestamp,
	OIDTimestamptzArray: OIDTimestamptz,
	OIDIntervalArray:    OIDInterval,
	OIDTimetzArray:      OIDTimetz,
	OIDNumericArray:     OIDNumeric,
	OIDUUIDArray:        OIDUUID,
	OIDJSONArray:        OIDJSON,
	OIDJSONBArray:       OIDJSONB,
	OIDInetArray:        OIDInet,
	OIDXIDArray:         OIDXID,
	OIDInt4RangeArray:   OIDInt4Range,
	OIDNumRangeArray:    OIDNumRange,
	OIDTSRangeArray:     OIDTSRange,
	OIDTSTZRangeArray:   OIDTSTZRange,
	OIDDateRangeArray:   OIDDateRange,
	OIDInt8RangeArray:   OIDInt8Range,
}

// elemArrayOID is the inverse of arrayElemOID -- element OID to its array OID.
var elemArrayOID = func() map[OID]OID {
	m := make(map[OID]OID, len(arrayElemOID))
	for arr, elem := range arrayElemOID {
		m[elem] = arr
	}
	return m
}()

// ArrayOIDOf returns the array OID for a given element OID and whether one
// is registered.
func ArrayOIDOf(elem OID) (OID, bool) {
	oid, ok := elemArrayOID[elem]
	return oid, ok
}

// ElementOIDOf returns the element OID for a given array OID and whether
// the array OID is a known built-in array.
func ElementOIDOf(array OID) (OID, bool) {
	oid, ok := arrayElemOID[array]
	return oid, ok
}
