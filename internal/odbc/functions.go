package odbc

// Function identifiers of SQLGetFunctions.
const (
	APIBindCol           = 4
	APICancel            = 5
	APIColAttribute      = 6
	APIConnect           = 7
	APIDescribeCol       = 8
	APIDisconnect        = 9
	APIExecDirect        = 11
	APIExecute           = 12
	APIFetch             = 13
	APIFreeStmt          = 16
	APINumResultCols     = 18
	APIPrepare           = 19
	APIRowCount          = 20
	APIColumns           = 40
	APIDriverConnect     = 41
	APIGetData           = 43
	APIGetFunctions      = 44
	APIGetInfo           = 45
	APITables            = 54
	APIMoreResults       = 61
	APIAllocHandle       = 1001
	APICloseCursor       = 1003
	APIEndTran           = 1005
	APIFreeHandle        = 1006
	APIGetConnectAttr    = 1007
	APIGetDiagRec        = 1011
	APIGetEnvAttr        = 1012
	APIGetStmtAttr       = 1014
	APISetConnectAttr    = 1016
	APISetEnvAttr        = 1019
	APISetStmtAttr       = 1020
	APIAllFunctions      = 0
	APIODBC3AllFunctions = 999
)

// FunctionBitmapSize is the number of 16-bit words in the
// SQL_API_ODBC3_ALL_FUNCTIONS bitmap.
const FunctionBitmapSize = 250

var exported = map[uint16]bool{
	APIBindCol: true, APICancel: true, APIColAttribute: true, APIConnect: true,
	APIDescribeCol: true, APIDisconnect: true, APIExecDirect: true, APIExecute: true,
	APIFetch: true, APIFreeStmt: true, APINumResultCols: true, APIPrepare: true,
	APIRowCount: true, APIColumns: true, APIDriverConnect: true, APIGetData: true,
	APIGetFunctions: true, APIGetInfo: true, APITables: true, APIMoreResults: true,
	APIAllocHandle: true, APICloseCursor: true, APIEndTran: true, APIFreeHandle: true,
	APIGetConnectAttr: true, APIGetDiagRec: true, APIGetEnvAttr: true, APIGetStmtAttr: true,
	APISetConnectAttr: true, APISetEnvAttr: true, APISetStmtAttr: true,
}

// Supported reports whether the driver exports the ODBC function id.
func Supported(id uint16) bool { return exported[id] }

// FunctionBitmap returns the SQL_API_ODBC3_ALL_FUNCTIONS bitmap.
func FunctionBitmap() [FunctionBitmapSize]uint16 {
	var bm [FunctionBitmapSize]uint16
	for id := range exported {
		bm[id>>4] |= 1 << (id & 0xF)
	}
	return bm
}

// LegacyFunctions returns the 100-entry SQL_API_ALL_FUNCTIONS array. Only
// identifiers below 100 are represented.
func LegacyFunctions() [100]uint16 {
	var out [100]uint16
	for id := range exported {
		if id < 100 {
			out[id] = 1
		}
	}
	return out
}
