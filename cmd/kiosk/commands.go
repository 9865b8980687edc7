package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

var status = cli.Command{
	Name:   "status",
	Usage:  "show wallet daemon and node status",
	Action: statusAction,
}

var listorders = cli.Command{
	Name:   "orders",
	Usage:  "list all orders",
	Action: listOrdersAction,
}

var getorder = cli.Command{
	Name:      "order",
	Usage:     "show one order",
	ArgsUsage: "<order-id>",
	Action:    getOrderAction,
}

var shiporder = cli.Command{
	Name:      "ship",
	Usage:     "mark an order as shipped",
	ArgsUsage: "<order-id>",
	Action:    shipOrderAction,
}

var deliverorder = cli.Command{
	Name:      "deliver",
	Usage:     "mark an order as delivered",
	ArgsUsage: "<order-id>",
	Action:    deliverOrderAction,
}

var retrycommission = cli.Command{
	Name:      "retry-commission",
	Usage:     "trigger an immediate commission forward attempt for an order",
	ArgsUsage: "<order-id>",
	Action:    retryCommissionAction,
}

func statusAction(ctx *cli.Context) error {
	return request(ctx, http.MethodGet, "/v1/status")
}

func listOrdersAction(ctx *cli.Context) error {
	return request(ctx, http.MethodGet, "/v1/orders")
}

func getOrderAction(ctx *cli.Context) error {
	id, err := orderIdArg(ctx)
	if err != nil {
		return err
	}
	return request(ctx, http.MethodGet, "/v1/orders/"+id)
}

func shipOrderAction(ctx *cli.Context) error {
	id, err := orderIdArg(ctx)
	if err != nil {
		return err
	}
	return request(ctx, http.MethodPost, "/v1/orders/"+id+"/ship")
}

func deliverOrderAction(ctx *cli.Context) error {
	id, err := orderIdArg(ctx)
	if err != nil {
		return err
	}
	return request(ctx, http.MethodPost, "/v1/orders/"+id+"/deliver")
}

func retryCommissionAction(ctx *cli.Context) error {
	id, err := orderIdArg(ctx)
	if err != nil {
		return err
	}
	return request(ctx, http.MethodPost, "/v1/orders/"+id+"/commission/retry")
}

func orderIdArg(ctx *cli.Context) (string, error) {
	id := ctx.Args().First()
	if len(id) <= 0 {
		return "", fmt.Errorf("missing order id argument")
	}
	return id, nil
}

func request(ctx *cli.Context, method, path string) error {
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequest(method, ctx.String("addr")+path, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(body))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
