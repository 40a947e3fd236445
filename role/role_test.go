package role

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseRole(t *testing.T) {
	Convey("ParseRole", t, func() {
		for _, s := range []string{"", "role1", "role2", "role3"} {
			r, err := ParseRole(s)
			So(err, ShouldBeNil)
			So(string(r), ShouldEqual, s)
		}

		_, err := ParseRole("admin")
		So(err, ShouldNotBeNil)
		_, err = ParseRole("Role1")
		So(err, ShouldNotBeNil)

		So(RoleUnset.String(), ShouldEqual, "unset")
		So(Role2.String(), ShouldEqual, "role2")
	})
}

func TestAuthorized(t *testing.T) {
	Convey("授权表", t, func() {
		Convey("每个操作只有一个角色可以执行", func() {
			for _, op := range AllOperations {
				count := 0
				for _, r := range AllRoles {
					if Authorized(r, op) {
						count++
						So(op.RequiredRole(), ShouldEqual, r)
					}
				}
				So(count, ShouldEqual, 1)
			}
		})

		Convey("未设置角色不能执行任何操作", func() {
			for _, op := range AllOperations {
				So(Authorized(RoleUnset, op), ShouldBeFalse)
			}
			So(RoleUnset.Operations(), ShouldBeEmpty)
		})

		Convey("Role.Operations", func() {
			So(Role1.Operations(), ShouldResemble, []Operation{CreateTable, InsertRow})
			So(Role2.Operations(), ShouldResemble, []Operation{ListTables, DescribeTable, DeleteTable})
			So(Role3.Operations(), ShouldResemble, []Operation{UpdateTable})
		})

		Convey("未知操作", func() {
			So(Operation(42).RequiredRole(), ShouldEqual, RoleUnset)
			So(Operation(42).String(), ShouldEqual, "Unknown")
			So(Authorized(Role1, Operation(42)), ShouldBeFalse)
		})
	})
}

func TestContext(t *testing.T) {
	Convey("Context", t, func() {
		c := NewContext()
		So(c.Role(), ShouldEqual, RoleUnset)

		var changes []Role
		c.OnChange(func(r Role) { changes = append(changes, r) })

		c.SetRole(Role1)
		c.SetRole(Role1)
		c.SetRole(Role3)
		So(c.Role(), ShouldEqual, Role3)
		So(changes, ShouldResemble, []Role{Role1, Role1, Role3})

		c.SetRole(RoleUnset)
		So(c.Role(), ShouldEqual, RoleUnset)
	})

	Convey("并发读写", t, func() {
		c := NewContext()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				c.SetRole(AllRoles[i%len(AllRoles)])
			}(i)
			go func() {
				defer wg.Done()
				_ = c.Role()
			}()
		}
		wg.Wait()
		So(c.Role(), ShouldBeIn, AllRoles)
	})
}
