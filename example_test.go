package tsodbc_test

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"

	"github.com/SimonWaldherr/tsodbc"
)

// replay serves three recorded pages of one column each.
func replay() tsodbc.Transport {
	pages := [][]string{{"cpu", "disk"}, {}, {"net"}}
	cols := []types.ColumnInfo{{Name: aws.String("measure"), Type: &types.Type{ScalarType: types.ScalarTypeVarchar}}}
	return tsodbc.TransportFunc(func(_ context.Context, req tsodbc.Request) (*tsodbc.Page, error) {
		idx := 0
		if req.NextToken != nil {
			idx, _ = strconv.Atoi(*req.NextToken)
		}
		p := &tsodbc.Page{QueryID: "replay", Columns: cols}
		for _, v := range pages[idx] {
			p.Rows = append(p.Rows, types.Row{Data: []types.Datum{{ScalarValue: aws.String(v)}}})
		}
		if idx+1 < len(pages) {
			p.NextToken = aws.String(strconv.Itoa(idx + 1))
		}
		return p, nil
	})
}

func ExampleNewSession() {
	s := tsodbc.NewSession(replay(), "SELECT DISTINCT measure_name FROM iot.metrics")
	defer s.Close()

	outcome, err := s.Execute(context.Background())
	if err != nil {
		fmt.Println("execute:", err)
		return
	}
	fmt.Println("outcome:", outcome)
	for {
		row, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Println("next:", err)
			return
		}
		fmt.Println(*row.Data[0].ScalarValue)
	}
	fmt.Println("background fetches:", s.Stats().FetchersStarted)
	// Output:
	// outcome: ROWS
	// cpu
	// disk
	// net
	// background fetches: 2
}

func ExampleParseConfig() {
	cfg, err := tsodbc.ParseConfig("Region=eu-west-1;Auth=IAM;UID=AKIDEXAMPLE;PWD={se;cret};MaxRowPerPage=500")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(cfg.Region, cfg.Auth, cfg.AccessKeyID, cfg.MaxRowsPerPage)
	// Output: eu-west-1 IAM AKIDEXAMPLE 500
}
