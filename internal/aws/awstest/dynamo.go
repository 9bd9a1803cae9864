// Package awstest provides in-memory fakes of the DynamoDB, SQS and CloudWatch
// clients for unit tests.
//
// The DynamoDB fake understands the small expression dialect used by the
// stores: AND-joined comparisons, attribute_exists/attribute_not_exists,
// SET with arithmetic, if_not_exists and list_append. It is not a general
// DynamoDB emulator.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// Dynamo is a thread-safe in-memory DynamoDB fake.
type Dynamo struct {
	mu     sync.Mutex
	keys   map[string][]string
	tables map[string]map[string]item

	// TransactHook, when set, runs before a TransactWriteItems call is applied.
	// A non-nil error is returned to the caller and nothing is written.
	TransactHook func(in *dyn.TransactWriteItemsInput) error

	TransactCalls int
	UpdateCalls   int
	PutCalls      int
}

func NewDynamo() *Dynamo {
	return &Dynamo{
		keys:   map[string][]string{},
		tables: map[string]map[string]item{},
	}
}

// CreateTable registers a table with its key attribute names (hash first).
func (d *Dynamo) CreateTable(name string, keyAttrs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[name] = keyAttrs
	if _, ok := d.tables[name]; !ok {
		d.tables[name] = map[string]item{}
	}
}

// Seed writes an item directly, bypassing conditions.
func (d *Dynamo) Seed(table string, it map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, err := d.keyOf(table, it)
	if err != nil {
		panic(err)
	}
	d.tables[table][k] = copyItem(it)
}

// Get returns a copy of the item with the given key values, or nil.
func (d *Dynamo) Get(table string, keyValues ...string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	it, ok := d.tables[table][strings.Join(keyValues, "|")]
	if !ok {
		return nil
	}
	return copyItem(it)
}

// Len returns the number of items stored in table.
func (d *Dynamo) Len(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[table])
}

func (d *Dynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := sdkaws.ToString(in.TableName)
	k, err := d.keyOf(table, in.Key)
	if err != nil {
		return nil, err
	}
	it, ok := d.tables[table][k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(it)}, nil
}

func (d *Dynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PutCalls++
	table := sdkaws.ToString(in.TableName)
	k, err := d.keyOf(table, in.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, d.tables[table][k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
	}
	d.tables[table][k] = copyItem(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.UpdateCalls++
	table := sdkaws.ToString(in.TableName)
	k, err := d.keyOf(table, in.Key)
	if err != nil {
		return nil, err
	}
	current := d.tables[table][k]
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
	}
	next, err := applyUpdate(current, in.Key, sdkaws.ToString(in.UpdateExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	d.tables[table][k] = next
	out := &dyn.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(next)
	}
	return out, nil
}

// Query supports a single equality key condition, optionally on an index.
// Results are ordered by primary key.
func (d *Dynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	table := sdkaws.ToString(in.TableName)
	expr := sdkaws.ToString(in.KeyConditionExpression)
	first := strings.SplitN(expr, " AND ", 2)[0]
	parts := strings.SplitN(first, "=", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("awstest: unsupported key condition %q", expr)
	}
	attr := resolveName(strings.TrimSpace(parts[0]), in.ExpressionAttributeNames)
	want, ok := in.ExpressionAttributeValues[strings.TrimSpace(parts[1])]
	if !ok {
		return nil, fmt.Errorf("awstest: missing value for %q", parts[1])
	}

	keys := make([]string, 0, len(d.tables[table]))
	for k := range d.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &dyn.QueryOutput{}
	for _, k := range keys {
		it := d.tables[table][k]
		if c, ok := compare(it[attr], want); ok && c == 0 {
			out.Items = append(out.Items, copyItem(it))
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (d *Dynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TransactCalls++
	if d.TransactHook != nil {
		if err := d.TransactHook(in); err != nil {
			return nil, err
		}
	}
	if len(in.TransactItems) > 100 {
		return nil, errors.New("awstest: ValidationException: too many transact items")
	}

	type target struct{ table, key string }
	seen := map[target]bool{}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	cancelled := false

	for i, ti := range in.TransactItems {
		table, key, cond, names, values, err := d.describe(ti)
		if err != nil {
			return nil, err
		}
		t := target{table, key}
		if seen[t] {
			return nil, fmt.Errorf("awstest: ValidationException: multiple operations on one item (%s %s)", table, key)
		}
		seen[t] = true

		ok, err := evalCondition(cond, names, values, d.tables[table][key])
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: sdkaws.String("None")}
		} else {
			reasons[i] = types.CancellationReason{Code: sdkaws.String("ConditionalCheckFailed")}
			cancelled = true
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			table := sdkaws.ToString(ti.Put.TableName)
			k, _ := d.keyOf(table, ti.Put.Item)
			d.tables[table][k] = copyItem(ti.Put.Item)
		case ti.Update != nil:
			table := sdkaws.ToString(ti.Update.TableName)
			k, _ := d.keyOf(table, ti.Update.Key)
			next, err := applyUpdate(d.tables[table][k], ti.Update.Key, sdkaws.ToString(ti.Update.UpdateExpression), ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			d.tables[table][k] = next
		case ti.Delete != nil:
			table := sdkaws.ToString(ti.Delete.TableName)
			k, _ := d.keyOf(table, ti.Delete.Key)
			delete(d.tables[table], k)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (d *Dynamo) describe(ti types.TransactWriteItem) (table, key string, cond *string, names map[string]string, values map[string]types.AttributeValue, err error) {
	switch {
	case ti.Put != nil:
		table = sdkaws.ToString(ti.Put.TableName)
		key, err = d.keyOf(table, ti.Put.Item)
		return table, key, ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues, err
	case ti.Update != nil:
		table = sdkaws.ToString(ti.Update.TableName)
		key, err = d.keyOf(table, ti.Update.Key)
		return table, key, ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues, err
	case ti.Delete != nil:
		table = sdkaws.ToString(ti.Delete.TableName)
		key, err = d.keyOf(table, ti.Delete.Key)
		return table, key, ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues, err
	case ti.ConditionCheck != nil:
		table = sdkaws.ToString(ti.ConditionCheck.TableName)
		key, err = d.keyOf(table, ti.ConditionCheck.Key)
		return table, key, ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues, err
	}
	return "", "", nil, nil, nil, errors.New("awstest: empty transact item")
}

func (d *Dynamo) keyOf(table string, it item) (string, error) {
	attrs, ok := d.keys[table]
	if !ok {
		return "", fmt.Errorf("awstest: ResourceNotFoundException: table %q", table)
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		v, ok := it[a]
		if !ok {
			return "", fmt.Errorf("awstest: ValidationException: missing key attribute %q for %s", a, table)
		}
		parts = append(parts, scalar(v))
	}
	return strings.Join(parts, "|"), nil
}

func scalar(v types.AttributeValue) string {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return t.Value
	}
	return fmt.Sprintf("%v", v)
}

func copyItem(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func resolveName(tok string, names map[string]string) string {
	if strings.HasPrefix(tok, "#") {
		if n, ok := names[tok]; ok {
			return n
		}
	}
	return tok
}

// compare orders two scalar attributes. ok is false when either side is
// missing or the types differ.
func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false
		}
		if av.Value == bv.Value {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

var operators = []string{"<>", ">=", "<=", "=", ">", "<"}

func evalCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, current item) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists("):
			name := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)
			if _, ok := current[name]; ok {
				return false, nil
			}
			continue
		case strings.HasPrefix(clause, "attribute_exists("):
			name := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)
			if _, ok := current[name]; !ok {
				return false, nil
			}
			continue
		}

		matched := false
		for _, op := range operators {
			idx := strings.Index(clause, " "+op+" ")
			if idx < 0 {
				continue
			}
			matched = true
			lhs := resolveName(strings.TrimSpace(clause[:idx]), names)
			rhs := strings.TrimSpace(clause[idx+len(op)+2:])
			want, ok := values[rhs]
			if !ok {
				return false, fmt.Errorf("awstest: missing value %s", rhs)
			}
			got, exists := current[lhs]
			if !exists {
				if op == "<>" {
					break
				}
				return false, nil
			}
			c, comparable := compare(got, want)
			if !comparable {
				if op == "<>" {
					break
				}
				return false, nil
			}
			var pass bool
			switch op {
			case "=":
				pass = c == 0
			case "<>":
				pass = c != 0
			case ">=":
				pass = c >= 0
			case "<=":
				pass = c <= 0
			case ">":
				pass = c > 0
			case "<":
				pass = c < 0
			}
			if !pass {
				return false, nil
			}
			break
		}
		if !matched {
			return false, fmt.Errorf("awstest: unsupported condition %q", clause)
		}
	}
	return true, nil
}

func applyUpdate(current, key item, expr string, names map[string]string, values map[string]types.AttributeValue) (item, error) {
	next := copyItem(current)
	if next == nil {
		next = copyItem(key)
	}
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return nil, fmt.Errorf("awstest: unsupported update %q", expr)
	}
	for _, assign := range splitTopLevel(strings.TrimPrefix(expr, "SET ")) {
		eq := strings.Index(assign, "=")
		if eq < 0 {
			return nil, fmt.Errorf("awstest: bad assignment %q", assign)
		}
		lhs := resolveName(strings.TrimSpace(assign[:eq]), names)
		v, err := evalValue(strings.TrimSpace(assign[eq+1:]), current, names, values)
		if err != nil {
			return nil, err
		}
		next[lhs] = v
	}
	return next, nil
}

func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func evalValue(expr string, current item, names map[string]string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	// binary + / - at top level
	depth := 0
	for i := len(expr) - 1; i >= 0; i-- {
		switch expr[i] {
		case ')':
			depth++
		case '(':
			depth--
		case '+', '-':
			if depth == 0 && i > 0 && expr[i-1] == ' ' {
				l, err := evalValue(strings.TrimSpace(expr[:i]), current, names, values)
				if err != nil {
					return nil, err
				}
				r, err := evalValue(strings.TrimSpace(expr[i+1:]), current, names, values)
				if err != nil {
					return nil, err
				}
				return arith(l, r, expr[i])
			}
		}
	}

	switch {
	case strings.HasPrefix(expr, ":"):
		v, ok := values[expr]
		if !ok {
			return nil, fmt.Errorf("awstest: missing value %s", expr)
		}
		return v, nil
	case strings.HasPrefix(expr, "if_not_exists(") && strings.HasSuffix(expr, ")"):
		args := splitTopLevel(expr[len("if_not_exists(") : len(expr)-1])
		if len(args) != 2 {
			return nil, fmt.Errorf("awstest: bad if_not_exists %q", expr)
		}
		if v, ok := current[resolveName(args[0], names)]; ok {
			return v, nil
		}
		return evalValue(args[1], current, names, values)
	case strings.HasPrefix(expr, "list_append(") && strings.HasSuffix(expr, ")"):
		args := splitTopLevel(expr[len("list_append(") : len(expr)-1])
		if len(args) != 2 {
			return nil, fmt.Errorf("awstest: bad list_append %q", expr)
		}
		a, err := evalValue(args[0], current, names, values)
		if err != nil {
			return nil, err
		}
		b, err := evalValue(args[1], current, names, values)
		if err != nil {
			return nil, err
		}
		la, ok1 := a.(*types.AttributeValueMemberL)
		lb, ok2 := b.(*types.AttributeValueMemberL)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("awstest: list_append on non-list")
		}
		joined := make([]types.AttributeValue, 0, len(la.Value)+len(lb.Value))
		joined = append(joined, la.Value...)
		joined = append(joined, lb.Value...)
		return &types.AttributeValueMemberL{Value: joined}, nil
	default:
		v, ok := current[resolveName(expr, names)]
		if !ok {
			return nil, fmt.Errorf("awstest: ValidationException: attribute %q does not exist", expr)
		}
		return v, nil
	}
}

func arith(l, r types.AttributeValue, op byte) (types.AttributeValue, error) {
	ln, ok1 := l.(*types.AttributeValueMemberN)
	rn, ok2 := r.(*types.AttributeValueMemberN)
	if !ok1 || !ok2 {
		return nil, errors.New("awstest: arithmetic on non-number")
	}
	x, err := strconv.ParseInt(ln.Value, 10, 64)
	if err != nil {
		return nil, err
	}
	y, err := strconv.ParseInt(rn.Value, 10, 64)
	if err != nil {
		return nil, err
	}
	if op == '-' {
		y = -y
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(x+y, 10)}, nil
}
